package ble

import (
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

func TestDispatchUpdatesSlot(t *testing.T) {
	adapter := newMockAdapter()
	h := &recordingHandler{}
	m, _ := testManager(t, adapter, h, noDelayOpts())
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return base }

	if _, err := m.Connect(addrA, "", AddressPublic); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	notify := adapter.connection(addrA).notifyChar

	notify.SimulateNotification([]byte("R"))
	if info, _ := m.Slot(0); !info.Rolling {
		t.Error("slot should be rolling")
	}

	base = base.Add(time.Second)
	notify.SimulateNotification([]byte{'S', 0, 0, 63})
	notify.SimulateNotification([]byte{'B', 'a', 't', 80})
	notify.SimulateNotification([]byte{'C', 'h', 'a', 'r', 'g', 1})
	notify.SimulateNotification([]byte{'C', 'o', 'l', 'o', 'r', byte(protocol.ColorBlue)})
	notify.SimulateNotification([]byte("Tap"))

	info, _ := m.Slot(0)
	if info.Rolling || info.LastFace != 2 {
		t.Errorf("after stable: rolling=%v face=%d, want false/2", info.Rolling, info.LastFace)
	}
	if info.Battery != 80 || !info.Charging {
		t.Errorf("battery=%d charging=%v", info.Battery, info.Charging)
	}
	if !info.ColorKnown || info.Color != protocol.ColorBlue {
		t.Errorf("color = %v (known %v)", info.Color, info.ColorKnown)
	}
	if !info.LastActivity.Equal(base) {
		t.Errorf("LastActivity = %v, want %v", info.LastActivity, base)
	}

	want := []string{
		"connected 0 " + addrA + " ",
		"rolling 0",
		"stable 0 2",
		"battery 0 80",
		"charging 0 true",
		"color 0 blue",
	}
	got := h.Events()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("events =\n%v\nwant\n%v", got, want)
	}
}

func TestDispatchUsesSlotGeometry(t *testing.T) {
	adapter := newMockAdapter()
	h := &recordingHandler{}
	m, _ := testManager(t, adapter, h, noDelayOpts())
	if _, err := m.Connect(addrA, "", AddressPublic); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := m.SetDieType(0, 20); err != nil {
		t.Fatalf("SetDieType() error = %v", err)
	}

	// D20 face 20 vector.
	adapter.connection(addrA).notifyChar.SimulateNotification([]byte{'S', 52, 0xEF, 0xE2})
	if info, _ := m.Slot(0); info.LastFace != 20 {
		t.Errorf("LastFace = %d, want 20", info.LastFace)
	}
}

func TestDispatchRoutesByChannel(t *testing.T) {
	adapter := newMockAdapter()
	h := &recordingHandler{}
	m, _ := testManager(t, adapter, h, noDelayOpts())
	for _, addr := range []string{addrA, addrB} {
		if _, err := m.Connect(addr, "", AddressPublic); err != nil {
			t.Fatalf("Connect(%s) error = %v", addr, err)
		}
	}

	adapter.connection(addrB).notifyChar.SimulateNotification([]byte{'B', 'a', 't', 42})

	a, _ := m.Slot(0)
	b, _ := m.Slot(1)
	if a.Battery != -1 {
		t.Errorf("slot 0 battery = %d, want untouched", a.Battery)
	}
	if b.Battery != 42 {
		t.Errorf("slot 1 battery = %d, want 42", b.Battery)
	}
	if a.Channel == b.Channel {
		t.Error("slots share a channel")
	}
}

func TestDispatchDropsUnmatched(t *testing.T) {
	adapter := newMockAdapter()
	h := &recordingHandler{}
	m, _ := testManager(t, adapter, h, noDelayOpts())
	if _, err := m.Connect(addrA, "", AddressPublic); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	before := len(h.Events())

	m.Dispatch(0, []byte("R"))
	m.Dispatch(9999, []byte("R"))
	adapter.connection(addrA).notifyChar.SimulateNotification([]byte("zzz"))
	adapter.connection(addrA).notifyChar.SimulateNotification([]byte{'B', 'a', 't', 101})
	adapter.connection(addrA).notifyChar.SimulateNotification([]byte{'S', 0, 0})

	if got := h.Events()[before:]; len(got) != 0 {
		t.Errorf("unexpected events %v", got)
	}
	if info, _ := m.Slot(0); info.Battery != -1 || info.Rolling {
		t.Errorf("slot changed by dropped notifications: %+v", info)
	}
}

func TestDispatchAfterDisconnect(t *testing.T) {
	adapter := newMockAdapter()
	h := &recordingHandler{}
	m, _ := testManager(t, adapter, h, noDelayOpts())
	if _, err := m.Connect(addrA, "", AddressPublic); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	notify := adapter.connection(addrA).notifyChar
	if err := m.Disconnect(0); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	notify.SimulateNotification([]byte("R"))
	if got := h.count("rolling"); got != 0 {
		t.Errorf("rolling events after disconnect = %d, want 0", got)
	}
}
