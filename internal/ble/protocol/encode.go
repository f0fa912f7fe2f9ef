package protocol

// Command opcodes written as the first byte of every outgoing packet.
const (
	OpInit                    byte = 0x19
	OpSetStaticColor          byte = 0x08
	OpToggleBlink             byte = 0x0C
	OpStopBlink               byte = 0x0D
	OpRequestColor            byte = 0x17
	OpRequestBattery          byte = 0x03
	OpUpdateDetectionSettings byte = 0x18
)

// Packet sizes, opcode included.
const (
	InitSize                    = 10
	SetStaticColorSize          = 7
	ToggleBlinkSize             = 9
	StopBlinkSize               = 1
	RequestColorSize            = 1
	RequestBatterySize          = 1
	UpdateDetectionSettingsSize = 9

	// MaxCommandSize is large enough for any command.
	MaxCommandSize = InitSize
)

const (
	// DefaultSensitivity is the roll sensitivity sent with Init.
	DefaultSensitivity = 30
	// BlinksInfinite keeps the LEDs blinking until StopBlink.
	BlinksInfinite uint8 = 255
)

// BlinkMode selects how the two LEDs blink.
type BlinkMode uint8

const (
	BlinkOneByOne BlinkMode = 0
	BlinkParallel BlinkMode = 1
)

// LEDSelector picks which LEDs a blink pattern drives.
type LEDSelector uint8

const (
	LEDsBoth LEDSelector = 0
	LED1     LEDSelector = 1
	LED2     LEDSelector = 2
)

// RGB is one LED color.
type RGB struct {
	R, G, B uint8
}

// Blink is an LED blink pattern. On and Off are in 10ms units.
type Blink struct {
	Blinks uint8
	On     uint8
	Off    uint8
	Color  RGB
	Mode   BlinkMode
	LEDs   LEDSelector
}

// DetectionSettings tunes the die's on-board roll detection.
type DetectionSettings struct {
	Samples       uint8
	MovementCount uint8
	FaceCount     uint8
	MinFlatDeg    uint8
	MaxFlatDeg    uint8
	WeakStable    uint8
	MovementDeg   uint8
	RollThreshold uint8
}

// DefaultDetectionSettings returns the firmware's factory tuning.
func DefaultDetectionSettings() DetectionSettings {
	return DetectionSettings{
		Samples:       4,
		MovementCount: 2,
		FaceCount:     1,
		MinFlatDeg:    10,
		MaxFlatDeg:    54,
		WeakStable:    20,
		MovementDeg:   50,
		RollThreshold: 30,
	}
}

// Command is an outgoing packet. Each command has one fixed size.
type Command interface {
	Opcode() byte
	Size() int
	// put writes the parameters after the opcode; buf is exactly Size bytes.
	put(buf []byte)
}

// Init is the first command sent after linking. Sensitivity is written as
// its low byte.
type Init struct {
	Sensitivity int
	Blink       Blink
}

// SetStaticColor turns both LEDs on with fixed colors.
type SetStaticColor struct {
	LED1, LED2 RGB
}

// ToggleBlink starts a blink pattern.
type ToggleBlink struct {
	Blink Blink
}

// StopBlink stops blinking and turns the LEDs off.
type StopBlink struct{}

// RequestColor asks the die to report its shell color.
type RequestColor struct{}

// RequestBattery asks the die to report its battery level.
type RequestBattery struct{}

// UpdateDetectionSettings pushes new roll detection tuning.
type UpdateDetectionSettings struct {
	Settings DetectionSettings
}

func (Init) Opcode() byte { return OpInit }
func (Init) Size() int    { return InitSize }
func (c Init) put(buf []byte) {
	buf[1] = byte(c.Sensitivity)
	putBlink(buf[2:], c.Blink)
}

func (SetStaticColor) Opcode() byte { return OpSetStaticColor }
func (SetStaticColor) Size() int    { return SetStaticColorSize }
func (c SetStaticColor) put(buf []byte) {
	buf[1], buf[2], buf[3] = c.LED1.R, c.LED1.G, c.LED1.B
	buf[4], buf[5], buf[6] = c.LED2.R, c.LED2.G, c.LED2.B
}

func (ToggleBlink) Opcode() byte     { return OpToggleBlink }
func (ToggleBlink) Size() int        { return ToggleBlinkSize }
func (c ToggleBlink) put(buf []byte) { putBlink(buf[1:], c.Blink) }

func (StopBlink) Opcode() byte { return OpStopBlink }
func (StopBlink) Size() int    { return StopBlinkSize }
func (StopBlink) put([]byte)   {}

func (RequestColor) Opcode() byte { return OpRequestColor }
func (RequestColor) Size() int    { return RequestColorSize }
func (RequestColor) put([]byte)   {}

func (RequestBattery) Opcode() byte { return OpRequestBattery }
func (RequestBattery) Size() int    { return RequestBatterySize }
func (RequestBattery) put([]byte)   {}

func (UpdateDetectionSettings) Opcode() byte { return OpUpdateDetectionSettings }
func (UpdateDetectionSettings) Size() int    { return UpdateDetectionSettingsSize }
func (c UpdateDetectionSettings) put(buf []byte) {
	s := c.Settings
	buf[1] = s.Samples
	buf[2] = s.MovementCount
	buf[3] = s.FaceCount
	buf[4] = s.MinFlatDeg
	buf[5] = s.MaxFlatDeg
	buf[6] = s.WeakStable
	buf[7] = s.MovementDeg
	buf[8] = s.RollThreshold
}

// putBlink writes the 8-byte blink block shared by Init and ToggleBlink.
func putBlink(buf []byte, b Blink) {
	buf[0] = b.Blinks
	buf[1] = b.On
	buf[2] = b.Off
	buf[3] = b.Color.R
	buf[4] = b.Color.G
	buf[5] = b.Color.B
	buf[6] = byte(b.Mode)
	buf[7] = byte(b.LEDs)
}

// Encode writes cmd into buf and returns the number of bytes written.
// It fails only when buf is shorter than cmd.Size().
func Encode(cmd Command, buf []byte) (int, error) {
	n := cmd.Size()
	if len(buf) < n {
		return 0, ErrBufferTooSmall
	}
	out := buf[:n]
	out[0] = cmd.Opcode()
	cmd.put(out)
	return n, nil
}

// Marshal returns cmd as a newly allocated packet.
func Marshal(cmd Command) []byte {
	buf := make([]byte, cmd.Size())
	Encode(cmd, buf) //nolint:errcheck // buf is sized by the command
	return buf
}
