// Package protocol implements the die's wire format: ASCII-prefixed
// telemetry packets coming from the notify characteristic, and
// opcode-prefixed command packets written to the write characteristic.
//
// Everything here is pure: no I/O, no goroutines, no shared state.
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPacket reports an unparseable or out-of-range incoming packet.
	ErrInvalidPacket = errors.New("protocol: invalid packet")
	// ErrBufferTooSmall reports an encode target shorter than the command size.
	ErrBufferTooSmall = errors.New("protocol: buffer too small")
	// ErrInvalidCallback reports a recognized event whose handler is missing.
	ErrInvalidCallback = errors.New("protocol: invalid callback")

	// ErrUnknownPrefix is returned for packets that start with no known event key.
	ErrUnknownPrefix = fmt.Errorf("%w: unknown event prefix", ErrInvalidPacket)
	// ErrUnknownGeometry is returned when a stable packet is decoded for a
	// die size that has no geometry table.
	ErrUnknownGeometry = fmt.Errorf("%w: no geometry for die", ErrInvalidPacket)
)

// Color is the shell color reported by the die.
type Color uint8

const (
	ColorBlack Color = iota
	ColorRed
	ColorGreen
	ColorBlue
	ColorYellow
	ColorOrange
)

var colorNames = [...]string{"black", "red", "green", "blue", "yellow", "orange"}

func (c Color) String() string {
	if c.Valid() {
		return colorNames[c]
	}
	return fmt.Sprintf("color(%d)", uint8(c))
}

// Valid reports whether c is one of the enumerated shell colors.
func (c Color) Valid() bool {
	return c <= ColorOrange
}
