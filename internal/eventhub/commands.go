package eventhub

import (
	"errors"
	"fmt"

	"github.com/chaz8081/dicelink/internal/ble"
	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

// Commander carries out client commands. *ble.Manager provides everything
// but StartScan and ConnectAddress, which need the host's scanner.
type Commander interface {
	StartScan()
	// ConnectAddress starts connecting to address in the background.
	ConnectAddress(address string, kind ble.AddressKind) error
	Disconnect(slot int) error
	RequestColor(slot int) error
	RequestBattery(slot int) error
	SetStaticColor(slot int, led1, led2 protocol.RGB) error
	Blink(slot int, b protocol.Blink) error
	StopBlink(slot int) error
	UpdateDetectionSettings(slot int, s protocol.DetectionSettings) error
	SetDieType(slot int, maxFace int) error
	Slots() []ble.SlotInfo
}

// Command is one inbound client message. Fields beyond Type and Slot are
// read only by the commands that use them.
type Command struct {
	Type    string `json:"type"`
	Slot    int    `json:"slot"`
	Address string `json:"address,omitempty"`
	Random  bool   `json:"random,omitempty"`

	LED1 [3]uint8 `json:"led1"`
	LED2 [3]uint8 `json:"led2"`

	Blinks uint8    `json:"blinks"`
	OnMS   int      `json:"on_ms"`
	OffMS  int      `json:"off_ms"`
	Color  [3]uint8 `json:"color"`
	Mode   string   `json:"mode"`
	LEDs   string   `json:"leds"`

	MaxFace   int        `json:"max_face"`
	Detection *Detection `json:"detection,omitempty"`
}

// Detection is the JSON form of protocol.DetectionSettings.
type Detection struct {
	Samples       uint8 `json:"samples"`
	MovementCount uint8 `json:"movement_count"`
	FaceCount     uint8 `json:"face_count"`
	MinFlatDeg    uint8 `json:"min_flat_deg"`
	MaxFlatDeg    uint8 `json:"max_flat_deg"`
	WeakStable    uint8 `json:"weak_stable"`
	MovementDeg   uint8 `json:"movement_deg"`
	RollThreshold uint8 `json:"roll_threshold"`
}

var (
	ErrUnknownCommand = errors.New("eventhub: unknown command")
	ErrNoCommander    = errors.New("eventhub: commands not accepted")
)

func rgb(c [3]uint8) protocol.RGB {
	return protocol.RGB{R: c[0], G: c[1], B: c[2]}
}

// execute runs cmd and returns an optional reply for the sender.
func (h *Hub) execute(cmd Command) (*Event, error) {
	if h.cmd == nil {
		return nil, ErrNoCommander
	}

	switch cmd.Type {
	case "slots":
		return &Event{Type: "slots", Payload: slotStates(h.cmd.Slots())}, nil
	case "scan":
		h.cmd.StartScan()
		return nil, nil
	case "connect":
		if cmd.Address == "" {
			return nil, fmt.Errorf("eventhub: connect needs an address")
		}
		kind := ble.AddressPublic
		if cmd.Random {
			kind = ble.AddressRandom
		}
		return nil, h.cmd.ConnectAddress(cmd.Address, kind)
	case "disconnect":
		return nil, h.cmd.Disconnect(cmd.Slot)
	case "request_color":
		return nil, h.cmd.RequestColor(cmd.Slot)
	case "request_battery":
		return nil, h.cmd.RequestBattery(cmd.Slot)
	case "set_color":
		return nil, h.cmd.SetStaticColor(cmd.Slot, rgb(cmd.LED1), rgb(cmd.LED2))
	case "blink":
		b, err := cmd.blink()
		if err != nil {
			return nil, err
		}
		return nil, h.cmd.Blink(cmd.Slot, b)
	case "stop_blink":
		return nil, h.cmd.StopBlink(cmd.Slot)
	case "detection_settings":
		s := protocol.DefaultDetectionSettings()
		if cmd.Detection != nil {
			s = protocol.DetectionSettings(*cmd.Detection)
		}
		return nil, h.cmd.UpdateDetectionSettings(cmd.Slot, s)
	case "die_type":
		return nil, h.cmd.SetDieType(cmd.Slot, cmd.MaxFace)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type)
}

func (cmd Command) blink() (protocol.Blink, error) {
	mode, leds := protocol.BlinkParallel, protocol.LEDsBoth
	var err error
	if cmd.Mode != "" {
		if mode, err = protocol.ParseBlinkMode(cmd.Mode); err != nil {
			return protocol.Blink{}, err
		}
	}
	if cmd.LEDs != "" {
		if leds, err = protocol.ParseLEDSelector(cmd.LEDs); err != nil {
			return protocol.Blink{}, err
		}
	}
	return protocol.Blink{
		Blinks: cmd.Blinks,
		On:     protocol.BlinkTicks(cmd.OnMS),
		Off:    protocol.BlinkTicks(cmd.OffMS),
		Color:  rgb(cmd.Color),
		Mode:   mode,
		LEDs:   leds,
	}, nil
}
