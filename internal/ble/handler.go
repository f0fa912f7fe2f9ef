package ble

import "github.com/chaz8081/dicelink/internal/ble/protocol"

// EventHandler receives die lifecycle and telemetry events. Calls are made
// without any Manager lock held, from whichever goroutine observed the
// event (a connect worker or the radio stack's notification goroutine).
type EventHandler interface {
	DieConnected(slot int, address, name string)
	DieDisconnected(slot int)
	// DieConnectFailed reports a connect that gave up. It fires once per
	// failed Connect call.
	DieConnectFailed(address string, err error)
	DieColor(slot int, color protocol.Color)
	DieRolling(slot int)
	DieStable(slot int, face int)
	DieBattery(slot int, level uint8)
	DieCharging(slot int, charging bool)
}

// NopHandler ignores every event. Embed it to implement only part of
// EventHandler.
type NopHandler struct{}

func (NopHandler) DieConnected(int, string, string) {}
func (NopHandler) DieDisconnected(int)              {}
func (NopHandler) DieConnectFailed(string, error)   {}
func (NopHandler) DieColor(int, protocol.Color)     {}
func (NopHandler) DieRolling(int)                   {}
func (NopHandler) DieStable(int, int)               {}
func (NopHandler) DieBattery(int, uint8)            {}
func (NopHandler) DieCharging(int, bool)            {}

var _ EventHandler = NopHandler{}

// MultiHandler forwards every event to each handler in order.
type MultiHandler []EventHandler

func (m MultiHandler) DieConnected(slot int, address, name string) {
	for _, h := range m {
		h.DieConnected(slot, address, name)
	}
}

func (m MultiHandler) DieDisconnected(slot int) {
	for _, h := range m {
		h.DieDisconnected(slot)
	}
}

func (m MultiHandler) DieConnectFailed(address string, err error) {
	for _, h := range m {
		h.DieConnectFailed(address, err)
	}
}

func (m MultiHandler) DieColor(slot int, color protocol.Color) {
	for _, h := range m {
		h.DieColor(slot, color)
	}
}

func (m MultiHandler) DieRolling(slot int) {
	for _, h := range m {
		h.DieRolling(slot)
	}
}

func (m MultiHandler) DieStable(slot int, face int) {
	for _, h := range m {
		h.DieStable(slot, face)
	}
}

func (m MultiHandler) DieBattery(slot int, level uint8) {
	for _, h := range m {
		h.DieBattery(slot, level)
	}
}

func (m MultiHandler) DieCharging(slot int, charging bool) {
	for _, h := range m {
		h.DieCharging(slot, charging)
	}
}
