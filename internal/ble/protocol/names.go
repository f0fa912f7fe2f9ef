package protocol

import "fmt"

// ParseBlinkMode accepts "parallel" or "one_by_one".
func ParseBlinkMode(s string) (BlinkMode, error) {
	switch s {
	case "parallel":
		return BlinkParallel, nil
	case "one_by_one":
		return BlinkOneByOne, nil
	}
	return 0, fmt.Errorf("protocol: unknown blink mode %q", s)
}

// ParseLEDSelector accepts "both", "1" or "2".
func ParseLEDSelector(s string) (LEDSelector, error) {
	switch s {
	case "both":
		return LEDsBoth, nil
	case "1":
		return LED1, nil
	case "2":
		return LED2, nil
	}
	return 0, fmt.Errorf("protocol: unknown LED selector %q", s)
}

// BlinkTicks converts milliseconds to the 10ms units used on the wire,
// clamped to 0..255.
func BlinkTicks(ms int) uint8 {
	t := ms / 10
	if t < 0 {
		return 0
	}
	if t > 255 {
		return 255
	}
	return uint8(t)
}
