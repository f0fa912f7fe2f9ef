package protocol

import (
	"bytes"
	"fmt"

	"github.com/chaz8081/dicelink/internal/ble/geometry"
)

// EventKind identifies the type of a decoded telemetry packet.
type EventKind int

const (
	EventRolling EventKind = iota + 1
	EventStable
	EventBattery
	EventCharging
	EventColor
	EventTap
	EventDoubleTap
)

func (k EventKind) String() string {
	switch k {
	case EventRolling:
		return "rolling"
	case EventStable:
		return "stable"
	case EventBattery:
		return "battery"
	case EventCharging:
		return "charging"
	case EventColor:
		return "color"
	case EventTap:
		return "tap"
	case EventDoubleTap:
		return "double_tap"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// StableKind tells which stable report produced a Stable event.
type StableKind uint8

const (
	StablePlain StableKind = iota
	StableFake
	StableMove
	StableTilt
)

func (s StableKind) String() string {
	switch s {
	case StableFake:
		return "fake"
	case StableMove:
		return "move"
	case StableTilt:
		return "tilt"
	default:
		return "plain"
	}
}

// Event is a decoded telemetry packet. Only the fields that belong to
// Kind are set.
type Event struct {
	Kind EventKind

	Face   int // EventStable
	Stable StableKind
	Axis   geometry.Axis

	Level    uint8 // EventBattery, 0..100
	Charging bool  // EventCharging
	Color    Color // EventColor
}

// eventKey describes one incoming event prefix and the exact number of
// bytes that must follow it.
type eventKey struct {
	prefix     string
	kind       EventKind
	stable     StableKind
	payloadLen int
}

// eventKeys is ordered so that longer keys are tried before the
// single-letter roll and stable keys they could otherwise shadow.
var eventKeys = []eventKey{
	{prefix: "Charg", kind: EventCharging, payloadLen: 1},
	{prefix: "Color", kind: EventColor, payloadLen: 1},
	{prefix: "DTap", kind: EventDoubleTap},
	{prefix: "Bat", kind: EventBattery, payloadLen: 1},
	{prefix: "Tap", kind: EventTap},
	{prefix: "FS", kind: EventStable, stable: StableFake, payloadLen: 4},
	{prefix: "MS", kind: EventStable, stable: StableMove, payloadLen: 4},
	{prefix: "TS", kind: EventStable, stable: StableTilt, payloadLen: 4},
	{prefix: "R", kind: EventRolling},
	{prefix: "S", kind: EventStable, stable: StablePlain, payloadLen: 3},
}

func matchKey(packet []byte) (eventKey, bool) {
	for _, k := range eventKeys {
		if bytes.HasPrefix(packet, []byte(k.prefix)) {
			return k, true
		}
	}
	return eventKey{}, false
}

// Kind returns the event kind announced by the packet's prefix without
// validating the payload.
func Kind(packet []byte) (EventKind, bool) {
	k, ok := matchKey(packet)
	return k.kind, ok
}

// Decode parses one notification from the die. maxFace selects the
// geometry used to turn stable samples into a face value.
func Decode(packet []byte, maxFace int) (Event, error) {
	k, ok := matchKey(packet)
	if !ok {
		return Event{}, ErrUnknownPrefix
	}

	payload := packet[len(k.prefix):]
	if len(payload) != k.payloadLen {
		return Event{}, fmt.Errorf("%w: %q payload is %d bytes, want %d",
			ErrInvalidPacket, k.prefix, len(payload), k.payloadLen)
	}

	ev := Event{Kind: k.kind}
	switch k.kind {
	case EventBattery:
		if payload[0] > 100 {
			return Event{}, fmt.Errorf("%w: battery level %d", ErrInvalidPacket, payload[0])
		}
		ev.Level = payload[0]

	case EventCharging:
		if payload[0] > 1 {
			return Event{}, fmt.Errorf("%w: charging flag %d", ErrInvalidPacket, payload[0])
		}
		ev.Charging = payload[0] == 1

	case EventColor:
		c := Color(payload[0])
		if !c.Valid() {
			return Event{}, fmt.Errorf("%w: shell color %d", ErrInvalidPacket, payload[0])
		}
		ev.Color = c

	case EventStable:
		// Sub-variants carry a one-byte tag before the sample.
		sample := payload[len(payload)-3:]
		ev.Stable = k.stable
		ev.Axis = geometry.Axis{X: int8(sample[0]), Y: int8(sample[1]), Z: int8(sample[2])}
		die, ok := geometry.Lookup(maxFace)
		if !ok {
			return Event{}, fmt.Errorf("%w (max face %d)", ErrUnknownGeometry, maxFace)
		}
		ev.Face = die.Classify(ev.Axis)
	}
	return ev, nil
}
