// Package gesture maps raw pointer and wheel input onto property values.
//
// Every computation takes the property's current value as an argument instead of
// remembering one from the start of the gesture, so a value pushed by the daemon
// mid-gesture becomes the new base for the next event.
package gesture

import (
	"math"

	"github.com/dokzlo13/relayctl/internal/property"
)

// DefaultFineRatio is the share of one step applied per wheel tick while the
// fine modifier is held.
const DefaultFineRatio = 0.1

// Mapper converts input into property values.
type Mapper struct {
	fineRatio float64
}

// NewMapper creates a mapper. A ratio outside (0, 1) falls back to DefaultFineRatio.
func NewMapper(fineRatio float64) Mapper {
	if fineRatio <= 0 || fineRatio >= 1 {
		fineRatio = DefaultFineRatio
	}
	return Mapper{fineRatio: fineRatio}
}

// FineRatio returns the configured fine-modifier ratio.
func (m Mapper) FineRatio() float64 {
	if m.fineRatio == 0 {
		return DefaultFineRatio
	}
	return m.fineRatio
}

// Step returns the increment of one wheel tick for id.
func (m Mapper) Step(id property.ID, fine bool) float64 {
	step := property.DomainOf(id).Step
	if fine {
		step *= m.FineRatio()
	}
	return step
}

// Position maps an absolute pointer position along a widget of the given pixel
// extent onto the domain of id, quantized to the property's step.
func (m Mapper) Position(id property.ID, pos, extent float64) float64 {
	dom := property.DomainOf(id)
	if extent <= 0 {
		return dom.Min
	}
	frac := math.Max(0, math.Min(1, pos/extent))
	return dom.Quantize(dom.Min+frac*dom.Span(), dom.Step)
}

// Displace applies a pointer displacement of dx pixels to current. Movement that
// does not add up to a whole step is returned as carry and must be passed back
// on the next call of the same gesture.
func (m Mapper) Displace(id property.ID, current, dx, extent, carry float64) (value, nextCarry float64) {
	dom := property.DomainOf(id)
	if extent <= 0 || dom.Kind == property.KindBool {
		return current, 0
	}

	raw := dx/extent*dom.Span() + carry
	// The epsilon keeps exact multiples from truncating one step short.
	steps := math.Trunc(raw/dom.Step + math.Copysign(1e-9, raw))
	if steps == 0 {
		return current, raw
	}
	value = dom.Quantize(current+steps*dom.Step, dom.Step)

	applied := value - current
	nextCarry = raw - applied
	// Pinned at a bound: drop the residual so reversing direction responds at once.
	if (value == dom.Max && raw > 0) || (value == dom.Min && raw < 0) {
		nextCarry = 0
	}
	return value, nextCarry
}

// Scroll applies ticks wheel notches to current. Each notch moves by exactly one
// step, or a fraction of a step with fine set, from wherever current is; the
// result is not snapped to the grid. Booleans flip once per odd tick count.
func (m Mapper) Scroll(id property.ID, current float64, ticks int, fine bool) float64 {
	dom := property.DomainOf(id)
	if dom.Kind == property.KindBool {
		if ticks%2 != 0 {
			return m.Toggle(current)
		}
		return current
	}
	return dom.Offset(current, float64(ticks)*m.Step(id, fine))
}

// Toggle flips a boolean value.
func (m Mapper) Toggle(current float64) float64 {
	return property.FromBool(!property.Bool(current))
}
