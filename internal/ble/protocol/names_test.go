package protocol

import "testing"

func TestParseBlinkMode(t *testing.T) {
	tests := []struct {
		in      string
		want    BlinkMode
		wantErr bool
	}{
		{"parallel", BlinkParallel, false},
		{"one_by_one", BlinkOneByOne, false},
		{"Parallel", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBlinkMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseBlinkMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseLEDSelector(t *testing.T) {
	tests := []struct {
		in      string
		want    LEDSelector
		wantErr bool
	}{
		{"both", LEDsBoth, false},
		{"1", LED1, false},
		{"2", LED2, false},
		{"3", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLEDSelector(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLEDSelector(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestBlinkTicks(t *testing.T) {
	tests := []struct {
		ms   int
		want uint8
	}{
		{0, 0},
		{9, 0},
		{500, 50},
		{2550, 255},
		{99999, 255},
		{-20, 0},
	}
	for _, tt := range tests {
		if got := BlinkTicks(tt.ms); got != tt.want {
			t.Errorf("BlinkTicks(%d) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}
