package controller

import (
	"github.com/dokzlo13/relayctl/internal/fade"
	"github.com/dokzlo13/relayctl/internal/property"
)

// Mode is the interaction state.
type Mode int

const (
	Idle Mode = iota
	Dragging
	Scrolling
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Scrolling:
		return "scrolling"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable copy of the controller state handed to observers.
type Snapshot struct {
	Version   uint64
	Records   [property.Count]property.Record
	Mode      Mode
	Active    property.ID
	Focus     property.ID
	Fine      bool
	Fade      fade.State
	Opacity   float64
	Connected bool
}

// Value returns the current value of id.
func (s Snapshot) Value(id property.ID) float64 {
	if !id.Valid() {
		return 0
	}
	return s.Records[id].Value
}

// Text returns the formatted current value of id.
func (s Snapshot) Text(id property.ID) string {
	return property.Format(id, s.Value(id))
}

// Hidden reports whether the window has faded out completely.
func (s Snapshot) Hidden() bool {
	return s.Fade == fade.Hidden
}
