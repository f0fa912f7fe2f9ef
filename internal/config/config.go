package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/dicelink/internal/ble/geometry"
	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	BLE      BLEConfig    `yaml:"ble"`
	Events   EventsConfig `yaml:"events"`
}

// BLEConfig holds die discovery, connection and initialization settings.
type BLEConfig struct {
	MaxDice         int              `yaml:"max_dice"`
	DieType         string           `yaml:"die_type"` // d4, d6, d8, d10, d10x, d12 or d20
	AutoScan        bool             `yaml:"auto_scan"`
	ScanDuration    time.Duration    `yaml:"scan_duration"`
	ConnectTimeout  time.Duration    `yaml:"connect_timeout"`
	ConnectAttempts int              `yaml:"connect_attempts"`
	RetryDelay      time.Duration    `yaml:"retry_delay"`
	SettleDelay     time.Duration    `yaml:"settle_delay"`
	CommandDelay    time.Duration    `yaml:"command_delay"`
	Sensitivity     int              `yaml:"sensitivity"`
	InitBlink       BlinkConfig      `yaml:"init_blink"`
	Detection       *DetectionConfig `yaml:"detection,omitempty"` // sent after init when set
}

// BlinkConfig describes the LED pattern shown when a die connects.
type BlinkConfig struct {
	Blinks int    `yaml:"blinks"`
	OnMS   int    `yaml:"on_ms"`
	OffMS  int    `yaml:"off_ms"`
	Color  [3]int `yaml:"color,flow"`
	Mode   string `yaml:"mode"` // "parallel" or "one_by_one"
	LEDs   string `yaml:"leds"` // "both", "1" or "2"
}

// DetectionConfig holds the die's roll detection tuning.
type DetectionConfig struct {
	Samples       int `yaml:"samples"`
	MovementCount int `yaml:"movement_count"`
	FaceCount     int `yaml:"face_count"`
	MinFlatDeg    int `yaml:"min_flat_deg"`
	MaxFlatDeg    int `yaml:"max_flat_deg"`
	WeakStable    int `yaml:"weak_stable"`
	MovementDeg   int `yaml:"movement_deg"`
	RollThreshold int `yaml:"roll_threshold"`
}

// EventsConfig holds the WebSocket event feed settings.
type EventsConfig struct {
	Listen string `yaml:"listen"` // empty disables the feed
	Path   string `yaml:"path"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "dicelink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		BLE: BLEConfig{
			MaxDice:         2,
			DieType:         "d6",
			AutoScan:        true,
			ScanDuration:    30 * time.Second,
			ConnectTimeout:  15 * time.Second,
			ConnectAttempts: 3,
			RetryDelay:      2 * time.Second,
			SettleDelay:     1 * time.Second,
			CommandDelay:    100 * time.Millisecond,
			Sensitivity:     30,
			InitBlink: BlinkConfig{
				Blinks: 3,
				OnMS:   500,
				OffMS:  500,
				Color:  [3]int{0, 255, 0},
				Mode:   "parallel",
				LEDs:   "both",
			},
		},
		Events: EventsConfig{
			Listen: "127.0.0.1:8765",
			Path:   "/ws",
		},
	}
}

// DefaultDetection returns the firmware's factory detection tuning, for
// users who want to start from it.
func DefaultDetection() *DetectionConfig {
	d := protocol.DefaultDetectionSettings()
	return &DetectionConfig{
		Samples:       int(d.Samples),
		MovementCount: int(d.MovementCount),
		FaceCount:     int(d.FaceCount),
		MinFlatDeg:    int(d.MinFlatDeg),
		MaxFlatDeg:    int(d.MaxFlatDeg),
		WeakStable:    int(d.WeakStable),
		MovementDeg:   int(d.MovementDeg),
		RollThreshold: int(d.RollThreshold),
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. A leading ~ in the path is expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the path written, or "" if a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	var b strings.Builder
	b.WriteString("# dicelink configuration\n")
	b.WriteString("# Durations use Go syntax (\"500ms\", \"30s\"). Blink times are rounded to 10ms.\n")
	b.WriteString("# Add a ble.detection block to retune roll detection.\n\n")
	b.Write(body)

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	b := c.BLE
	if b.MaxDice < 1 {
		return fmt.Errorf("ble.max_dice must be >= 1, got %d", b.MaxDice)
	}
	if _, err := geometry.ByName(b.DieType); err != nil {
		return fmt.Errorf("ble.die_type must be one of %s, got %q", strings.Join(geometry.Names(), ", "), b.DieType)
	}
	if b.ScanDuration <= 0 {
		return fmt.Errorf("ble.scan_duration must be > 0")
	}
	if b.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if b.ConnectAttempts < 1 {
		return fmt.Errorf("ble.connect_attempts must be >= 1, got %d", b.ConnectAttempts)
	}
	if b.RetryDelay < 0 || b.SettleDelay < 0 || b.CommandDelay < 0 {
		return fmt.Errorf("ble delays must not be negative")
	}
	if err := checkByte("ble.sensitivity", b.Sensitivity); err != nil {
		return err
	}
	if err := b.InitBlink.validate(); err != nil {
		return err
	}
	if b.Detection != nil {
		if err := b.Detection.validate(); err != nil {
			return err
		}
	}

	if c.Events.Listen != "" && !strings.HasPrefix(c.Events.Path, "/") {
		return fmt.Errorf("events.path must start with /, got %q", c.Events.Path)
	}

	return nil
}

func (b BlinkConfig) validate() error {
	if err := checkByte("ble.init_blink.blinks", b.Blinks); err != nil {
		return err
	}
	if b.OnMS < 0 || b.OnMS > 2550 {
		return fmt.Errorf("ble.init_blink.on_ms must be 0..2550, got %d", b.OnMS)
	}
	if b.OffMS < 0 || b.OffMS > 2550 {
		return fmt.Errorf("ble.init_blink.off_ms must be 0..2550, got %d", b.OffMS)
	}
	for i, v := range b.Color {
		if err := checkByte(fmt.Sprintf("ble.init_blink.color[%d]", i), v); err != nil {
			return err
		}
	}
	if _, err := protocol.ParseBlinkMode(b.Mode); err != nil {
		return fmt.Errorf("ble.init_blink.mode: %w", err)
	}
	if _, err := protocol.ParseLEDSelector(b.LEDs); err != nil {
		return fmt.Errorf("ble.init_blink.leds: %w", err)
	}
	return nil
}

func (d DetectionConfig) validate() error {
	fields := []struct {
		name string
		v    int
	}{
		{"samples", d.Samples},
		{"movement_count", d.MovementCount},
		{"face_count", d.FaceCount},
		{"min_flat_deg", d.MinFlatDeg},
		{"max_flat_deg", d.MaxFlatDeg},
		{"weak_stable", d.WeakStable},
		{"movement_deg", d.MovementDeg},
		{"roll_threshold", d.RollThreshold},
	}
	for _, f := range fields {
		if err := checkByte("ble.detection."+f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// Blink converts the pattern to its wire form. Call Validate first;
// unknown mode or LED names fall back to parallel on both LEDs.
func (b BlinkConfig) Blink() protocol.Blink {
	mode, _ := protocol.ParseBlinkMode(b.Mode)
	leds, _ := protocol.ParseLEDSelector(b.LEDs)
	return protocol.Blink{
		Blinks: uint8(b.Blinks),
		On:     protocol.BlinkTicks(b.OnMS),
		Off:    protocol.BlinkTicks(b.OffMS),
		Color:  protocol.RGB{R: uint8(b.Color[0]), G: uint8(b.Color[1]), B: uint8(b.Color[2])},
		Mode:   mode,
		LEDs:   leds,
	}
}

// Settings converts the tuning to its wire form.
func (d DetectionConfig) Settings() protocol.DetectionSettings {
	return protocol.DetectionSettings{
		Samples:       uint8(d.Samples),
		MovementCount: uint8(d.MovementCount),
		FaceCount:     uint8(d.FaceCount),
		MinFlatDeg:    uint8(d.MinFlatDeg),
		MaxFlatDeg:    uint8(d.MaxFlatDeg),
		WeakStable:    uint8(d.WeakStable),
		MovementDeg:   uint8(d.MovementDeg),
		RollThreshold: uint8(d.RollThreshold),
	}
}

func checkByte(name string, v int) error {
	if v < 0 || v > 255 {
		return fmt.Errorf("%s must be 0..255, got %d", name, v)
	}
	return nil
}

// ParseLogLevel maps a config log level to a slog.Level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
