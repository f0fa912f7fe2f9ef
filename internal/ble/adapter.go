// Package ble connects to GoDice-style smart dice over Bluetooth Low Energy.
// It discovers dice, keeps a fixed table of linked dice, routes their
// notifications through the wire codec and sends LED and tuning commands.
package ble

import (
	"context"
	"errors"
)

// Die BLE UUIDs (Nordic UART service layout).
const (
	ServiceUUID    = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	WriteCharUUID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e" // host -> die
	NotifyCharUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e" // die -> host
)

var (
	ErrNoFreeSlot             = errors.New("ble: no free slot")
	ErrConnectFailed          = errors.New("ble: connect failed")
	ErrServiceNotFound        = errors.New("ble: service not found")
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
	ErrNotLinked              = errors.New("ble: slot not linked")
	ErrAlreadyLinked          = errors.New("ble: address already linked")
	ErrInvalidSlot            = errors.New("ble: invalid slot")
	ErrNoCandidate            = errors.New("ble: no pending candidate")
)

// AddressKind is how a peripheral advertises its address.
type AddressKind uint8

const (
	AddressPublic AddressKind = iota
	AddressRandom
)

// Alternate returns the other address kind.
func (k AddressKind) Alternate() AddressKind {
	if k == AddressRandom {
		return AddressPublic
	}
	return AddressRandom
}

func (k AddressKind) String() string {
	if k == AddressRandom {
		return "random"
	}
	return "public"
}

// Advertisement is one advertising report seen during discovery.
type Advertisement struct {
	Address    string
	Name       string
	Kind       AddressKind
	RSSI       int
	HasService bool // advertises the service passed to Scan
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic without response.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// MTU returns the negotiated ATT MTU of the link.
	MTU() (int, error)
}

// Service is a resolved GATT service on a connected peripheral.
type Service interface {
	DiscoverCharacteristic(uuid string) (Characteristic, error)
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverService resolves a primary service by UUID.
	DiscoverService(uuid string) (Service, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports every advertisement, duplicates included, until ctx is
	// done. HasService is set for peripherals advertising serviceUUID.
	Scan(ctx context.Context, serviceUUID string, fn func(Advertisement)) error
	// Connect establishes a connection using the given address kind. The
	// attempt is bounded by ctx.
	Connect(ctx context.Context, address string, kind AddressKind) (Connection, error)
}
