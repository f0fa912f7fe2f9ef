package ble

import (
	"errors"
	"testing"
	"time"
)

func TestPairerConnectsDiscoveredDie(t *testing.T) {
	adapter := newMockAdapter(dieAd(addrA))
	h := &recordingHandler{}
	m, slept := testManager(t, adapter, h, noDelayOpts())
	m.opts.SettleDelay = time.Second
	s := NewScanner(adapter, m, DefaultScannerOptions())
	p := NewPairer(s, m, false)

	if p.Poll() {
		t.Fatal("Poll() started a worker with nothing pending")
	}

	s.Start()
	waitFor(t, "candidate", s.Pending)
	if !p.Poll() {
		t.Fatal("Poll() did not start a worker")
	}
	p.Wait()

	if !m.IsLinked(addrA) {
		t.Fatal("die not linked")
	}
	if s.Scanning() {
		t.Error("discovery should stay stopped after connecting")
	}
	if len(*slept) == 0 || (*slept)[0] != time.Second {
		t.Errorf("first sleep = %v, want the settle delay", *slept)
	}
	if got := h.count("connected 0"); got != 1 {
		t.Errorf("connected events = %d, want 1", got)
	}

	// The linked die keeps advertising; it must not become a candidate again.
	s.Start()
	waitFor(t, "scan to start", s.Scanning)
	s.Stop()
	if s.Pending() {
		t.Error("linked die recorded as a candidate")
	}
}

func TestPairerAutoScan(t *testing.T) {
	adapter := newMockAdapter()
	m, _ := testManager(t, adapter, nil, noDelayOpts())
	s := NewScanner(adapter, m, DefaultScannerOptions())
	p := NewPairer(s, m, true)

	p.Poll()
	if !s.Scanning() {
		t.Error("Poll() should reopen discovery with free slots")
	}
	s.Stop()
}

func TestConnectDiscoveredWithoutCandidate(t *testing.T) {
	adapter := newMockAdapter()
	m, _ := testManager(t, adapter, nil, noDelayOpts())
	s := NewScanner(adapter, m, DefaultScannerOptions())

	if _, err := m.ConnectDiscovered(s); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("ConnectDiscovered() error = %v, want ErrNoCandidate", err)
	}
}
