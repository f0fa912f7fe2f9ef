package ble

import (
	"errors"
	"log/slog"

	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

// Dispatch routes one notification from channel ch to the slot subscribed
// on it, updates the slot's cached state and forwards the event to the
// EventHandler. Notifications from unknown channels are dropped.
func (m *Manager) Dispatch(ch ChannelID, data []byte) {
	idx, maxFace, ok := m.lookupChannel(ch)
	if !ok {
		slog.Info("[BLE] notification from unknown channel dropped", "channel", ch, "len", len(data))
		return
	}

	h := m.handlersFor(idx, ch)
	if _, err := h.Handle(data, maxFace); err != nil {
		if errors.Is(err, protocol.ErrUnknownPrefix) {
			slog.Debug("[BLE] unrecognized notification", "slot", idx, "data", data)
			return
		}
		slog.Warn("[BLE] bad notification", "slot", idx, "data", data, "error", err)
	}
}

func (m *Manager) lookupChannel(ch ChannelID) (idx, maxFace int, ok bool) {
	if ch == 0 {
		return -1, 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].linked && m.slots[i].channel == ch {
			return i, m.slots[i].maxFace, true
		}
	}
	return -1, 0, false
}

// apply mutates slot idx if it is still linked on ch. It reports whether
// the event should be forwarded.
func (m *Manager) apply(idx int, ch ChannelID, fn func(s *slot)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[idx]
	if !s.linked || s.channel != ch {
		return false
	}
	fn(s)
	s.lastActivity = m.now()
	return true
}

func (m *Manager) handlersFor(idx int, ch ChannelID) *protocol.Handlers {
	return &protocol.Handlers{
		Rolling: func() {
			if m.apply(idx, ch, func(s *slot) { s.rolling = true }) {
				m.handler.DieRolling(idx)
			}
		},
		Stable: func(face int, ev protocol.Event) {
			ok := m.apply(idx, ch, func(s *slot) {
				s.rolling = false
				s.lastFace = face
			})
			if ok {
				slog.Debug("[BLE] stable", "slot", idx, "face", face, "kind", ev.Stable, "x", ev.Axis.X, "y", ev.Axis.Y, "z", ev.Axis.Z)
				m.handler.DieStable(idx, face)
			}
		},
		Battery: func(level uint8) {
			if m.apply(idx, ch, func(s *slot) { s.battery = int(level) }) {
				m.handler.DieBattery(idx, level)
			}
		},
		Charging: func(charging bool) {
			if m.apply(idx, ch, func(s *slot) { s.charging = charging }) {
				m.handler.DieCharging(idx, charging)
			}
		},
		Color: func(c protocol.Color) {
			ok := m.apply(idx, ch, func(s *slot) {
				s.color = c
				s.colorKnown = true
			})
			if ok {
				m.handler.DieColor(idx, c)
			}
		},
		Tap: func() {
			if m.apply(idx, ch, func(*slot) {}) {
				slog.Debug("[BLE] tap", "slot", idx)
			}
		},
		DoubleTap: func() {
			if m.apply(idx, ch, func(*slot) {}) {
				slog.Debug("[BLE] double tap", "slot", idx)
			}
		},
	}
}
