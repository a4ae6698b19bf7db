package gesture

import (
	"math"
	"testing"

	"github.com/dokzlo13/relayctl/internal/property"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPosition(t *testing.T) {
	m := NewMapper(0)
	tests := []struct {
		name   string
		id     property.ID
		pos    float64
		extent float64
		want   float64
	}{
		{"temperature/start", property.Temperature, 0, 90, 1000},
		{"temperature/end", property.Temperature, 90, 90, 10000},
		{"temperature/middle_quantized", property.Temperature, 47, 90, 5700},
		{"temperature/past_end", property.Temperature, 120, 90, 10000},
		{"temperature/before_start", property.Temperature, -5, 90, 1000},
		{"brightness/half", property.Brightness, 50, 100, 0.5},
		{"gamma/quarter", property.Gamma, 25, 100, 0.75},
		{"zero_extent", property.Gamma, 10, 0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Position(tt.id, tt.pos, tt.extent)
			if !approx(got, tt.want) {
				t.Errorf("Position(%v, %v, %v) = %v, want %v", tt.id, tt.pos, tt.extent, got, tt.want)
			}
		})
	}
}

func TestScrollSteps(t *testing.T) {
	m := NewMapper(0.1)
	tests := []struct {
		name    string
		id      property.ID
		current float64
		ticks   int
		fine    bool
		want    float64
	}{
		{"temperature/up", property.Temperature, 5000, 1, false, 5100},
		{"temperature/down_three", property.Temperature, 5000, -3, false, 4700},
		{"temperature/fine_up", property.Temperature, 5000, 1, true, 5010},
		{"temperature/clamped_top", property.Temperature, 9950, 2, false, 10000},
		{"temperature/off_grid_up", property.Temperature, 6550, 3, false, 6850},
		{"temperature/off_grid_down", property.Temperature, 6550, -1, false, 6450},
		{"temperature/off_grid_fine_down", property.Temperature, 6550, -1, true, 6540},
		{"brightness/off_grid_up", property.Brightness, 0.733, 1, false, 0.743},
		{"brightness/up", property.Brightness, 0.5, 1, false, 0.51},
		{"brightness/fine_down", property.Brightness, 0.5, -1, true, 0.499},
		{"gamma/clamped_bottom", property.Gamma, 0.5, -1, false, 0.5},
		{"inverted/one_tick_flips", property.Inverted, 0, 1, false, 1},
		{"inverted/two_ticks_keep", property.Inverted, 1, 2, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Scroll(tt.id, tt.current, tt.ticks, tt.fine)
			if !approx(got, tt.want) {
				t.Errorf("Scroll(%v, %v, %d, fine=%v) = %v, want %v", tt.id, tt.current, tt.ticks, tt.fine, got, tt.want)
			}
		})
	}
}

func TestFineScrollIsSmallerByRatio(t *testing.T) {
	for _, ratio := range []float64{0.1, 0.25, 0.5} {
		m := NewMapper(ratio)
		for _, id := range []property.ID{property.Temperature, property.Brightness, property.Gamma} {
			plain := m.Step(id, false)
			fine := m.Step(id, true)
			if !(math.Abs(fine) < math.Abs(plain)) {
				t.Errorf("%v ratio %v: fine step %v not smaller than plain %v", id, ratio, fine, plain)
			}
			if !approx(fine, plain*ratio) {
				t.Errorf("%v ratio %v: fine step %v, want %v", id, ratio, fine, plain*ratio)
			}
		}
	}
}

func TestNewMapperRejectsBadRatio(t *testing.T) {
	for _, r := range []float64{0, -1, 1, 3} {
		if got := NewMapper(r).FineRatio(); got != DefaultFineRatio {
			t.Errorf("NewMapper(%v).FineRatio() = %v, want %v", r, got, DefaultFineRatio)
		}
	}
}

func TestDisplaceCarriesSubStepMovement(t *testing.T) {
	m := NewMapper(0)
	// 180px over 9000K: one pixel is 50K, half a step.
	v, carry := m.Displace(property.Temperature, 5000, 1, 180, 0)
	if v != 5000 {
		t.Fatalf("first pixel moved value to %v, want 5000", v)
	}
	v, carry = m.Displace(property.Temperature, v, 1, 180, carry)
	if v != 5100 {
		t.Fatalf("second pixel moved value to %v, want 5100", v)
	}
	if !approx(carry, 0) {
		t.Errorf("carry = %v, want 0", carry)
	}

	v, _ = m.Displace(property.Temperature, v, -4, 180, carry)
	if v != 4900 {
		t.Errorf("dragging back 4px = %v, want 4900", v)
	}
}

func TestDisplaceUsesCurrentValue(t *testing.T) {
	m := NewMapper(0)
	// 90px extent: one pixel is one step of 100K.
	v, carry := m.Displace(property.Temperature, 5000, 1, 90, 0)
	if v != 5100 {
		t.Fatalf("Displace from 5000 = %v, want 5100", v)
	}

	// The daemon moved the value to 5200 meanwhile; the next event builds on that.
	v, _ = m.Displace(property.Temperature, 5200, 1, 90, carry)
	if v != 5300 {
		t.Errorf("Displace from 5200 = %v, want 5300", v)
	}
}

func TestDisplaceDropsCarryAtBounds(t *testing.T) {
	m := NewMapper(0)
	v, carry := m.Displace(property.Brightness, 0.99, 30, 100, 0)
	if v != 1 {
		t.Fatalf("Displace past max = %v, want 1", v)
	}
	if carry != 0 {
		t.Fatalf("carry at bound = %v, want 0", carry)
	}
	v, _ = m.Displace(property.Brightness, v, -1, 100, carry)
	if !approx(v, 0.99) {
		t.Errorf("reversing from bound = %v, want 0.99", v)
	}
}

func TestDisplaceIgnoresBooleans(t *testing.T) {
	m := NewMapper(0)
	v, carry := m.Displace(property.Inverted, 1, 50, 100, 0)
	if v != 1 || carry != 0 {
		t.Errorf("Displace on boolean = (%v, %v), want (1, 0)", v, carry)
	}
}

func TestToggle(t *testing.T) {
	m := NewMapper(0)
	if m.Toggle(0) != 1 || m.Toggle(1) != 0 {
		t.Error("Toggle should flip 0 and 1")
	}
}
