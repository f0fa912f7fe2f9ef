package ble

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Pairer connects discovered dice from the host's main loop. At most one
// connect runs at a time, on a worker goroutine, so Poll never blocks.
type Pairer struct {
	scanner  *Scanner
	manager  *Manager
	autoScan bool

	busy atomic.Bool
	wg   sync.WaitGroup
}

// NewPairer creates a Pairer. With autoScan set, Poll reopens discovery
// whenever it is idle and a slot is free.
func NewPairer(scanner *Scanner, manager *Manager, autoScan bool) *Pairer {
	return &Pairer{scanner: scanner, manager: manager, autoScan: autoScan}
}

// Poll runs one main-loop step. It returns true if a connect worker was
// started.
func (p *Pairer) Poll() bool {
	if !p.busy.CompareAndSwap(false, true) {
		return false
	}

	if !p.scanner.Pending() {
		p.busy.Store(false)
		if p.autoScan && !p.scanner.Scanning() {
			if _, ok := p.manager.FindFreeSlot(); ok {
				p.scanner.Start()
			}
		}
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		if _, err := p.manager.ConnectDiscovered(p.scanner); err != nil {
			slog.Debug("[BLE] pairing worker finished with error", "error", err)
		}
	}()
	return true
}

// Wait blocks until any running connect worker finishes.
func (p *Pairer) Wait() {
	p.wg.Wait()
}

// ConnectDiscovered consumes the scanner's pending candidate, stops
// discovery, waits for the radio to settle and connects.
func (m *Manager) ConnectDiscovered(s *Scanner) (int, error) {
	c, ok := s.TakeCandidate()
	if !ok {
		return -1, ErrNoCandidate
	}
	s.Stop()
	m.sleep(m.opts.SettleDelay)
	return m.Connect(c.Address, c.Name, c.Kind)
}
