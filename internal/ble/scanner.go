package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Candidate is a die found during discovery and not yet connected.
type Candidate struct {
	Address string
	Name    string
	Kind    AddressKind
	RSSI    int
}

// LinkChecker reports whether an address already occupies a slot.
type LinkChecker interface {
	IsLinked(address string) bool
}

// ScannerOptions configures discovery.
type ScannerOptions struct {
	Duration    time.Duration // bounded scan window (default 30s)
	LogInterval time.Duration // per-address advertisement log rate limit (default 5s)
}

// DefaultScannerOptions returns the standard discovery window.
func DefaultScannerOptions() ScannerOptions {
	return ScannerOptions{
		Duration:    30 * time.Second,
		LogInterval: 5 * time.Second,
	}
}

// Scanner runs bounded discovery and holds at most one pending candidate.
// A newer candidate replaces an unconsumed one. Discovery stops as soon as
// a candidate is recorded and is not resumed automatically.
type Scanner struct {
	adapter Adapter
	links   LinkChecker
	opts    ScannerOptions
	now     func() time.Time

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	pending    *Candidate
	lastLogged map[string]time.Time
}

// NewScanner creates a Scanner. links may be nil.
func NewScanner(adapter Adapter, links LinkChecker, opts ScannerOptions) *Scanner {
	if opts.Duration <= 0 {
		opts.Duration = 30 * time.Second
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = 5 * time.Second
	}
	return &Scanner{
		adapter:    adapter,
		links:      links,
		opts:       opts,
		now:        time.Now,
		lastLogged: make(map[string]time.Time),
	}
}

// Start begins a discovery window in the background. It is a no-op while
// a scan is already running.
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Duration)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	slog.Info("[SCAN] discovery started", "duration", s.opts.Duration)
	go func() {
		defer close(done)
		err := s.adapter.Scan(ctx, ServiceUUID, s.observe)
		cancel()

		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()

		if err != nil {
			slog.Error("[SCAN] discovery failed", "error", err)
			return
		}
		slog.Info("[SCAN] discovery stopped")
	}()
}

// Stop ends the current discovery window and waits for the radio to stop
// scanning. Must not be called from inside an advertisement callback.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Scanning reports whether a discovery window is open.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Pending reports whether a candidate is waiting to be connected.
func (s *Scanner) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// TakeCandidate consumes the pending candidate.
func (s *Scanner) TakeCandidate() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Candidate{}, false
	}
	c := *s.pending
	s.pending = nil
	return c, true
}

// observe is the advertisement callback. It runs on the radio stack's
// goroutine, so it only records state and never blocks.
func (s *Scanner) observe(adv Advertisement) {
	now := s.now()

	s.mu.Lock()
	last, seen := s.lastLogged[adv.Address]
	logIt := !seen || now.Sub(last) >= s.opts.LogInterval
	if !seen {
		// Random addresses rotate; forget the ones that have gone quiet.
		for addr, t := range s.lastLogged {
			if now.Sub(t) >= s.opts.LogInterval {
				delete(s.lastLogged, addr)
			}
		}
	}
	if logIt {
		s.lastLogged[adv.Address] = now
	}
	s.mu.Unlock()

	if logIt {
		slog.Debug("[SCAN] advertisement", "address", adv.Address, "name", adv.Name, "rssi", adv.RSSI, "die", adv.HasService)
	}
	if !adv.HasService {
		return
	}
	if s.links != nil && s.links.IsLinked(adv.Address) {
		return
	}

	s.mu.Lock()
	s.pending = &Candidate{Address: adv.Address, Name: adv.Name, Kind: adv.Kind, RSSI: adv.RSSI}
	cancel := s.cancel
	s.mu.Unlock()

	slog.Info("[SCAN] die found", "address", adv.Address, "name", adv.Name, "kind", adv.Kind, "rssi", adv.RSSI)
	if cancel != nil {
		cancel()
	}
}

// ScanForDice runs one discovery window and returns every distinct die seen.
func ScanForDice(adapter Adapter, timeout time.Duration) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		seen  = make(map[string]int)
		found []Candidate
	)
	err := adapter.Scan(ctx, ServiceUUID, func(adv Advertisement) {
		if !adv.HasService {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		c := Candidate{Address: adv.Address, Name: adv.Name, Kind: adv.Kind, RSSI: adv.RSSI}
		if i, ok := seen[adv.Address]; ok {
			found[i] = c
			return
		}
		seen[adv.Address] = len(found)
		found = append(found, c)
	})
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return found, nil
}
