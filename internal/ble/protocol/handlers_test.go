package protocol

import (
	"errors"
	"testing"
)

func TestHandleInvokesHandler(t *testing.T) {
	var (
		rolled  bool
		face    int
		level   uint8
		charg   bool
		color   Color
		tapped  int
		dtapped int
	)
	h := &Handlers{
		Rolling:   func() { rolled = true },
		Stable:    func(f int, _ Event) { face = f },
		Battery:   func(l uint8) { level = l },
		Charging:  func(c bool) { charg = c },
		Color:     func(c Color) { color = c },
		Tap:       func() { tapped++ },
		DoubleTap: func() { dtapped++ },
	}

	packets := [][]byte{
		{'R'},
		{'S', 0, 0, 63},
		{'B', 'a', 't', 77},
		{'C', 'h', 'a', 'r', 'g', 1},
		{'C', 'o', 'l', 'o', 'r', 3},
		[]byte("Tap"),
		[]byte("DTap"),
	}
	for _, p := range packets {
		if _, err := h.Handle(p, 6); err != nil {
			t.Fatalf("Handle(%q) error = %v", p, err)
		}
	}

	if !rolled {
		t.Error("Rolling handler not called")
	}
	if face != 2 {
		t.Errorf("face = %d, want 2", face)
	}
	if level != 77 {
		t.Errorf("level = %d, want 77", level)
	}
	if !charg {
		t.Error("charging = false, want true")
	}
	if color != ColorBlue {
		t.Errorf("color = %v, want blue", color)
	}
	if tapped != 1 || dtapped != 1 {
		t.Errorf("taps = %d/%d, want 1/1", tapped, dtapped)
	}
}

func TestHandleMissingCallback(t *testing.T) {
	h := &Handlers{Rolling: func() {}}

	if _, err := h.Handle([]byte{'B', 'a', 't', 10}, 6); !errors.Is(err, ErrInvalidCallback) {
		t.Errorf("Handle(battery) error = %v, want ErrInvalidCallback", err)
	}
	// Checked before the payload: a malformed packet still reports the
	// missing handler.
	if _, err := h.Handle([]byte{'S', 1}, 6); !errors.Is(err, ErrInvalidCallback) {
		t.Errorf("Handle(short stable) error = %v, want ErrInvalidCallback", err)
	}
	// Tap handlers are optional.
	if _, err := h.Handle([]byte("Tap"), 6); err != nil {
		t.Errorf("Handle(tap) error = %v, want nil", err)
	}

	var nilHandlers *Handlers
	if _, err := nilHandlers.Handle([]byte{'R'}, 6); !errors.Is(err, ErrInvalidCallback) {
		t.Errorf("nil Handle() error = %v, want ErrInvalidCallback", err)
	}
}

func TestHandleInvalidPacketSkipsHandler(t *testing.T) {
	called := false
	h := &Handlers{Battery: func(uint8) { called = true }}
	if _, err := h.Handle([]byte{'B', 'a', 't', 101}, 6); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("Handle() error = %v, want ErrInvalidPacket", err)
	}
	if called {
		t.Error("Battery handler called for an invalid packet")
	}
	if _, err := h.Handle([]byte("zzz"), 6); !errors.Is(err, ErrUnknownPrefix) {
		t.Errorf("Handle(unknown) error = %v, want ErrUnknownPrefix", err)
	}
}
