package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.BLE.MaxDice != 2 {
		t.Errorf("BLE.MaxDice = %d, want 2", cfg.BLE.MaxDice)
	}
	if cfg.BLE.DieType != "d6" {
		t.Errorf("BLE.DieType = %q, want %q", cfg.BLE.DieType, "d6")
	}
	if cfg.BLE.ScanDuration != 30*time.Second {
		t.Errorf("BLE.ScanDuration = %v, want 30s", cfg.BLE.ScanDuration)
	}
	if cfg.BLE.ConnectTimeout != 15*time.Second || cfg.BLE.ConnectAttempts != 3 {
		t.Errorf("connect = %v x%d, want 15s x3", cfg.BLE.ConnectTimeout, cfg.BLE.ConnectAttempts)
	}
	if cfg.BLE.RetryDelay != 2*time.Second || cfg.BLE.SettleDelay != time.Second || cfg.BLE.CommandDelay != 100*time.Millisecond {
		t.Errorf("delays = %v/%v/%v", cfg.BLE.RetryDelay, cfg.BLE.SettleDelay, cfg.BLE.CommandDelay)
	}
	if cfg.BLE.Sensitivity != 30 {
		t.Errorf("BLE.Sensitivity = %d, want 30", cfg.BLE.Sensitivity)
	}
	if cfg.BLE.InitBlink.Color != [3]int{0, 255, 0} {
		t.Errorf("BLE.InitBlink.Color = %v, want green", cfg.BLE.InitBlink.Color)
	}
	if cfg.BLE.Detection != nil {
		t.Error("BLE.Detection should be unset by default")
	}
	if cfg.Events.Listen != "127.0.0.1:8765" || cfg.Events.Path != "/ws" {
		t.Errorf("Events = %+v", cfg.Events)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
log_level: debug
ble:
  max_dice: 4
  die_type: d20
  auto_scan: false
  scan_duration: 10s
  connect_timeout: 5s
  retry_delay: 500ms
  init_blink:
    blinks: 1
    color: [255, 0, 0]
    mode: one_by_one
    leds: "1"
  detection:
    samples: 8
    roll_threshold: 40
events:
  listen: ":9000"
  path: /dice
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.BLE.MaxDice != 4 || cfg.BLE.DieType != "d20" || cfg.BLE.AutoScan {
		t.Errorf("BLE = %+v", cfg.BLE)
	}
	if cfg.BLE.ScanDuration != 10*time.Second || cfg.BLE.ConnectTimeout != 5*time.Second || cfg.BLE.RetryDelay != 500*time.Millisecond {
		t.Errorf("durations = %v/%v/%v", cfg.BLE.ScanDuration, cfg.BLE.ConnectTimeout, cfg.BLE.RetryDelay)
	}
	if cfg.BLE.ConnectAttempts != 3 {
		t.Errorf("BLE.ConnectAttempts = %d, want default 3", cfg.BLE.ConnectAttempts)
	}
	blink := cfg.BLE.InitBlink
	if blink.Blinks != 1 || blink.Color != [3]int{255, 0, 0} || blink.Mode != "one_by_one" || blink.LEDs != "1" {
		t.Errorf("InitBlink = %+v", blink)
	}
	if blink.OnMS != 500 {
		t.Errorf("InitBlink.OnMS = %d, want default 500", blink.OnMS)
	}
	if cfg.BLE.Detection == nil || cfg.BLE.Detection.Samples != 8 || cfg.BLE.Detection.RollThreshold != 40 {
		t.Errorf("Detection = %+v", cfg.BLE.Detection)
	}
	if cfg.Events.Listen != ":9000" || cfg.Events.Path != "/dice" {
		t.Errorf("Events = %+v", cfg.Events)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	if err := os.WriteFile(filepath.Join(tmpHome, "dice.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load("~/dice.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for missing file")
	}
}

func TestLoadBadDuration(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("ble:\n  scan_duration: forever\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should reject an unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "zero dice",
			modify:  func(c *Config) { c.BLE.MaxDice = 0 },
			wantErr: true,
		},
		{
			name:    "unknown die type",
			modify:  func(c *Config) { c.BLE.DieType = "d7" },
			wantErr: true,
		},
		{
			name:    "percentile die",
			modify:  func(c *Config) { c.BLE.DieType = "d10x" },
			wantErr: false,
		},
		{
			name:    "zero scan duration",
			modify:  func(c *Config) { c.BLE.ScanDuration = 0 },
			wantErr: true,
		},
		{
			name:    "zero connect attempts",
			modify:  func(c *Config) { c.BLE.ConnectAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "negative command delay",
			modify:  func(c *Config) { c.BLE.CommandDelay = -time.Millisecond },
			wantErr: true,
		},
		{
			name:    "zero delays allowed",
			modify:  func(c *Config) { c.BLE.RetryDelay, c.BLE.SettleDelay, c.BLE.CommandDelay = 0, 0, 0 },
			wantErr: false,
		},
		{
			name:    "sensitivity out of range",
			modify:  func(c *Config) { c.BLE.Sensitivity = 256 },
			wantErr: true,
		},
		{
			name:    "blink color out of range",
			modify:  func(c *Config) { c.BLE.InitBlink.Color[2] = -1 },
			wantErr: true,
		},
		{
			name:    "blink on time too long",
			modify:  func(c *Config) { c.BLE.InitBlink.OnMS = 3000 },
			wantErr: true,
		},
		{
			name:    "bad blink mode",
			modify:  func(c *Config) { c.BLE.InitBlink.Mode = "strobe" },
			wantErr: true,
		},
		{
			name:    "bad blink leds",
			modify:  func(c *Config) { c.BLE.InitBlink.LEDs = "3" },
			wantErr: true,
		},
		{
			name:    "detection defaults",
			modify:  func(c *Config) { c.BLE.Detection = DefaultDetection() },
			wantErr: false,
		},
		{
			name: "detection out of range",
			modify: func(c *Config) {
				c.BLE.Detection = DefaultDetection()
				c.BLE.Detection.MaxFlatDeg = 300
			},
			wantErr: true,
		},
		{
			name:    "events path without slash",
			modify:  func(c *Config) { c.Events.Path = "ws" },
			wantErr: true,
		},
		{
			name: "events disabled ignores path",
			modify: func(c *Config) {
				c.Events.Listen = ""
				c.Events.Path = ""
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "dicelink", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# dicelink") {
		t.Error("written config should start with header comment")
	}

	// Should be valid YAML that parses into a Config
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}

	if cfg.BLE.ScanDuration != 30*time.Second {
		t.Errorf("written config BLE.ScanDuration = %v, want 30s", cfg.BLE.ScanDuration)
	}
	if cfg.BLE.InitBlink.Mode != "parallel" {
		t.Errorf("written config BLE.InitBlink.Mode = %q, want %q", cfg.BLE.InitBlink.Mode, "parallel")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "dicelink")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	// WriteDefault should return ("", nil) without overwriting
	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBlinkConversion(t *testing.T) {
	got := Default().BLE.InitBlink.Blink()
	want := protocol.Blink{
		Blinks: 3,
		On:     50,
		Off:    50,
		Color:  protocol.RGB{G: 255},
		Mode:   protocol.BlinkParallel,
		LEDs:   protocol.LEDsBoth,
	}
	if got != want {
		t.Errorf("Blink() = %+v, want %+v", got, want)
	}
}

func TestDetectionConversion(t *testing.T) {
	d := DefaultDetection()
	if d.MaxFlatDeg != 54 || d.RollThreshold != 30 {
		t.Errorf("DefaultDetection() = %+v, want firmware tuning", d)
	}
	if got := d.Settings(); got != protocol.DefaultDetectionSettings() {
		t.Errorf("Settings() = %+v, want firmware defaults", got)
	}

	cfg := Default()
	cfg.BLE.Detection = d
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with default detection: %v", err)
	}
}
