package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/dicelink/internal/ble"
	"github.com/chaz8081/dicelink/internal/ble/geometry"
	"github.com/chaz8081/dicelink/internal/config"
	"github.com/chaz8081/dicelink/internal/eventhub"
)

// pollInterval is how often the main loop looks for discovered dice.
const pollInterval = 250 * time.Millisecond

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/dicelink/config.yaml)")
	writeConfig := flag.Bool("init", false, "write the default config file and exit")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("Failed to enable Bluetooth: %v\n\nCheck that the adapter is powered on and that this process may use it.", err)
	}

	ctl := &controller{}
	hub := eventhub.New(ctl)
	manager := ble.NewManager(adapter, ble.MultiHandler{rollLogger{}, hub}, managerOptions(cfg))
	scanner := ble.NewScanner(adapter, manager, ble.ScannerOptions{Duration: cfg.BLE.ScanDuration})
	ctl.Manager = manager
	ctl.scanner = scanner
	pairer := ble.NewPairer(scanner, manager, cfg.BLE.AutoScan)

	var srv *http.Server
	if cfg.Events.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Events.Path, hub)
		srv = &http.Server{Addr: cfg.Events.Listen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("ERROR: event feed stopped: %v", err)
			}
		}()
		log.Printf("Event feed on ws://%s%s", cfg.Events.Listen, cfg.Events.Path)
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !cfg.BLE.AutoScan {
		scanner.Start()
	}
	log.Println("Ready! Waiting for dice. Ctrl+C to quit.")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// Main event loop
	for {
		select {
		case <-ticker.C:
			pairer.Poll()

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			scanner.Stop()
			manager.DisconnectAll()
			if srv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				srv.Shutdown(ctx)
				cancel()
			}
			hub.Close()
			log.Println("Goodbye!")
			return
		}
	}
}

// managerOptions maps the ble config section onto manager options.
func managerOptions(cfg *config.Config) ble.ManagerOptions {
	die, _ := geometry.ByName(cfg.BLE.DieType)
	opts := ble.ManagerOptions{
		Capacity:        cfg.BLE.MaxDice,
		MaxFace:         die.MaxFace,
		ConnectAttempts: cfg.BLE.ConnectAttempts,
		ConnectTimeout:  cfg.BLE.ConnectTimeout,
		RetryDelay:      cfg.BLE.RetryDelay,
		SettleDelay:     cfg.BLE.SettleDelay,
		CommandDelay:    cfg.BLE.CommandDelay,
		Sensitivity:     cfg.BLE.Sensitivity,
		InitBlink:       cfg.BLE.InitBlink.Blink(),
	}
	if cfg.BLE.Detection != nil {
		s := cfg.BLE.Detection.Settings()
		opts.Detection = &s
	}
	return opts
}

// controller serves event feed commands that need both the manager and
// the scanner.
type controller struct {
	*ble.Manager
	scanner *ble.Scanner
}

func (c *controller) StartScan() {
	c.scanner.Start()
}

// ConnectAddress checks for room up front so the client gets an immediate
// error, then connects in the background.
func (c *controller) ConnectAddress(address string, kind ble.AddressKind) error {
	if c.IsLinked(address) {
		return ble.ErrAlreadyLinked
	}
	if _, ok := c.FindFreeSlot(); !ok {
		return ble.ErrNoFreeSlot
	}
	go func() {
		c.scanner.Stop()
		c.Connect(address, "", kind)
	}()
	return nil
}

// rollLogger prints die activity to the console.
type rollLogger struct {
	ble.NopHandler
}

func (rollLogger) DieConnected(slot int, address, name string) {
	log.Printf("Die %d connected: %s (%s)", slot, name, address)
}

func (rollLogger) DieDisconnected(slot int) {
	log.Printf("Die %d disconnected", slot)
}

func (rollLogger) DieStable(slot int, face int) {
	log.Printf("Die %d rolled %d", slot, face)
}

func (rollLogger) DieBattery(slot int, level uint8) {
	log.Printf("Die %d battery %d%%", slot, level)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	events := "disabled"
	if cfg.Events.Listen != "" {
		events = cfg.Events.Listen + cfg.Events.Path
	}
	fmt.Println("=== dicelink ===")
	fmt.Printf("  Dice:    up to %d (%s)\n", cfg.BLE.MaxDice, cfg.BLE.DieType)
	fmt.Printf("  Scan:    %s windows, auto: %t\n", cfg.BLE.ScanDuration, cfg.BLE.AutoScan)
	fmt.Printf("  Events:  %s\n", events)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("================")
}
