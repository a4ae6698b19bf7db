// Package property describes the four settings exposed by the gamma relay daemon
// and holds their last-known values.
package property

import (
	"fmt"
	"math"
	"strings"
)

// ID identifies one of the controllable properties.
type ID int

const (
	Temperature ID = iota
	Brightness
	Gamma
	Inverted
)

// Count is the number of properties. The set is fixed.
const Count = 4

// All lists every property in display order.
var All = [Count]ID{Temperature, Brightness, Gamma, Inverted}

// String returns the lowercase property name.
func (id ID) String() string {
	switch id {
	case Temperature:
		return "temperature"
	case Brightness:
		return "brightness"
	case Gamma:
		return "gamma"
	case Inverted:
		return "inverted"
	default:
		return "unknown"
	}
}

// Label returns the human-readable label shown next to the control.
func (id ID) Label() string {
	switch id {
	case Temperature:
		return "Temperature"
	case Brightness:
		return "Brightness"
	case Gamma:
		return "Gamma"
	case Inverted:
		return "Invert"
	default:
		return "?"
	}
}

// Valid reports whether id names a known property.
func (id ID) Valid() bool {
	return id >= Temperature && id <= Inverted
}

// Parse resolves a property by name (case-insensitive).
func Parse(name string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "temperature", "temp":
		return Temperature, nil
	case "brightness":
		return Brightness, nil
	case "gamma":
		return Gamma, nil
	case "inverted", "invert":
		return Inverted, nil
	}
	return 0, fmt.Errorf("unknown property %q", name)
}

// Kind is the value type of a property.
type Kind int

const (
	KindInteger Kind = iota
	KindFraction
	KindBool
)

// Domain is the valid value range of a property.
type Domain struct {
	Kind Kind
	Min  float64
	Max  float64
	Step float64
}

var domains = [Count]Domain{
	Temperature: {Kind: KindInteger, Min: 1000, Max: 10000, Step: 100},
	Brightness:  {Kind: KindFraction, Min: 0, Max: 1, Step: 0.01},
	Gamma:       {Kind: KindFraction, Min: 0.5, Max: 1.5, Step: 0.01},
	Inverted:    {Kind: KindBool, Min: 0, Max: 1, Step: 1},
}

// DomainOf returns the domain of id.
func DomainOf(id ID) Domain {
	if !id.Valid() {
		return Domain{}
	}
	return domains[id]
}

// Span returns Max-Min.
func (d Domain) Span() float64 {
	return d.Max - d.Min
}

// Clamp forces v into the domain. Booleans collapse to 0 or 1, integers are rounded.
func (d Domain) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return d.Min
	}
	switch d.Kind {
	case KindBool:
		if v >= 0.5 {
			return 1
		}
		return 0
	case KindInteger:
		v = math.Round(v)
	}
	if v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	return v
}

// Quantize rounds v to the nearest multiple of step and clamps the result.
// A non-positive step only clamps.
func (d Domain) Quantize(v, step float64) float64 {
	if step > 0 {
		v = math.Round(v/step) * step
		// Trim float noise such as 0.30000000000000004.
		v = math.Round(v*1e6) / 1e6
	}
	return d.Clamp(v)
}

// Offset moves v by delta and clamps the result. Unlike Quantize it keeps v
// off the step grid, so every call moves by exactly delta inside the domain.
func (d Domain) Offset(v, delta float64) float64 {
	// Trim float noise such as 0.30000000000000004.
	return d.Clamp(math.Round((v+delta)*1e6) / 1e6)
}

// Bool converts a stored value to a boolean.
func Bool(v float64) bool {
	return v >= 0.5
}

// FromBool converts a boolean to its stored value.
func FromBool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Format renders v the way the applet labels it.
func Format(id ID, v float64) string {
	switch id {
	case Temperature:
		return fmt.Sprintf("%d K", int(math.Round(v)))
	case Brightness:
		return fmt.Sprintf("%3.0f %%", v*100)
	case Gamma:
		return fmt.Sprintf("%.2f γ", v)
	case Inverted:
		if Bool(v) {
			return "on"
		}
		return "off"
	default:
		return fmt.Sprintf("%g", v)
	}
}
