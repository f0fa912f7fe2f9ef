// Command test-dice is a manual test for the BLE die link.
// It scans for dice, connects to the first one found, blinks it and
// prints its events until interrupted.
//
// Usage:
//
//	go run ./cmd/test-dice [--list] [--timeout 10s] [--type d6]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/chaz8081/dicelink/internal/ble"
	"github.com/chaz8081/dicelink/internal/ble/geometry"
	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

type printer struct{}

func (printer) DieConnected(slot int, address, name string) {
	fmt.Printf("[%d] connected %s (%s)\n", slot, name, address)
}
func (printer) DieDisconnected(slot int) { fmt.Printf("[%d] disconnected\n", slot) }
func (printer) DieConnectFailed(address string, err error) {
	fmt.Printf("connect %s failed: %v\n", address, err)
}
func (printer) DieColor(slot int, c protocol.Color) { fmt.Printf("[%d] color %s\n", slot, c) }
func (printer) DieRolling(slot int)                 { fmt.Printf("[%d] rolling...\n", slot) }
func (printer) DieStable(slot, face int)            { fmt.Printf("[%d] stable on %d\n", slot, face) }
func (printer) DieBattery(slot int, level uint8)    { fmt.Printf("[%d] battery %d%%\n", slot, level) }
func (printer) DieCharging(slot int, charging bool) { fmt.Printf("[%d] charging: %t\n", slot, charging) }

func main() {
	list := flag.Bool("list", false, "only list nearby dice")
	timeout := flag.Duration("timeout", 10*time.Second, "scan timeout")
	dieType := flag.String("type", "d6", "die type: "+fmt.Sprint(geometry.Names()))
	flag.Parse()

	die, err := geometry.ByName(*dieType)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		fmt.Printf("Error: enable adapter: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scanning for %s...\n", *timeout)
	dice, err := ble.ScanForDice(adapter, *timeout)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(dice) == 0 {
		fmt.Println("No dice found. Shake a die to wake it up.")
		return
	}
	for i, d := range dice {
		fmt.Printf("  %d. %s  %s  %s  %d dBm\n", i+1, d.Name, d.Address, d.Kind, d.RSSI)
	}
	if *list {
		return
	}

	opts := ble.DefaultManagerOptions()
	opts.Capacity = 1
	opts.MaxFace = die.MaxFace
	m := ble.NewManager(adapter, printer{}, opts)

	first := dice[0]
	slot, err := m.Connect(first.Address, first.Name, first.Kind)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	blink := protocol.Blink{Blinks: 5, On: 20, Off: 20, Color: protocol.RGB{R: 255, B: 255}, Mode: protocol.BlinkOneByOne}
	if err := m.Blink(slot, blink); err != nil {
		fmt.Printf("Error: blink: %v\n", err)
	}

	fmt.Println("Roll the die. Ctrl+C to quit.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	m.DisconnectAll()
	fmt.Println("\nDone!")
}
