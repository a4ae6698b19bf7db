package property

import "testing"

func TestQuantize(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		in   float64
		step float64
		want float64
	}{
		{"temperature/nearest_hundred_down", Temperature, 4549, 100, 4500},
		{"temperature/nearest_hundred_up", Temperature, 4551, 100, 4600},
		{"temperature/fine_step", Temperature, 4513, 10, 4510},
		{"temperature/clamped", Temperature, 10049, 100, 10000},
		{"brightness/hundredths", Brightness, 0.456, 0.01, 0.46},
		{"brightness/float_noise", Brightness, 0.1 + 0.2, 0.01, 0.3},
		{"gamma/thousandths", Gamma, 1.0004, 0.001, 1},
		{"no_step_only_clamps", Gamma, 2, 0, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DomainOf(tt.id).Quantize(tt.in, tt.step)
			if got != tt.want {
				t.Errorf("Quantize(%v, %v) = %v, want %v", tt.in, tt.step, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		id   ID
		v    float64
		want string
	}{
		{Temperature, 6500, "6500 K"},
		{Brightness, 0.75, " 75 %"},
		{Brightness, 1, "100 %"},
		{Gamma, 1, "1.00 γ"},
		{Gamma, 0.876, "0.88 γ"},
		{Inverted, 1, "on"},
		{Inverted, 0, "off"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Format(tt.id, tt.v); got != tt.want {
				t.Errorf("Format(%v, %v) = %q, want %q", tt.id, tt.v, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	for _, id := range All {
		got, err := Parse(id.String())
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", id.String(), err)
		}
		if got != id {
			t.Errorf("Parse(%q) = %v, want %v", id.String(), got, id)
		}
	}
	if _, err := Parse("hue"); err == nil {
		t.Error("Parse(hue) should fail")
	}
}
