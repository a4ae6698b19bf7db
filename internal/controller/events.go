package controller

import (
	"github.com/dokzlo13/relayctl/internal/fade"
	"github.com/dokzlo13/relayctl/internal/property"
	"github.com/dokzlo13/relayctl/internal/remote"
	"github.com/dokzlo13/relayctl/internal/worker"
)

// Event is a marker interface for everything the controller loop consumes.
type Event interface {
	event()
}

// ============================================================================
// Gestures
// ============================================================================

// PointerDown starts a drag on a slider. Pos is the pointer position along the
// widget and Extent its length, in the same unit.
type PointerDown struct {
	Property property.ID
	Pos      float64
	Extent   float64
}

// PointerMove reports the pointer position during a drag.
type PointerMove struct {
	Pos float64
}

// PointerUp ends a drag.
type PointerUp struct{}

// Scroll applies wheel notches (positive = up) to a property.
type Scroll struct {
	Property property.ID
	Ticks    int
	Fine     bool
}

// Reset restores the default of a property and sends it without coalescing.
type Reset struct {
	Property property.ID
}

// Toggle flips a boolean property.
type Toggle struct {
	Property property.ID
}

// Modifier reports whether the fine modifier is held.
type Modifier struct {
	Held bool
}

// Interact reports input that changes no value but counts as activity.
type Interact struct{}

// ============================================================================
// Link and worker observations
// ============================================================================

// Connected reports that the change stream is up. A fresh read follows.
type Connected struct{}

// Disconnected reports that the change stream ended.
type Disconnected struct {
	Err error
}

// Inbound carries a value reported by the daemon.
type Inbound struct {
	remote.Notification
}

// WriteResult carries the outcome of a write executed by the worker pool.
type WriteResult struct {
	worker.Result
}

// ============================================================================
// Configuration
// ============================================================================

// ConfigChanged replaces the reloadable settings.
type ConfigChanged struct {
	Defaults    property.Defaults
	FadeEnabled bool
}

// ============================================================================
// Internal
// ============================================================================

type coalesceDue struct {
	property property.ID
	gen      uint64
}

type quiesced struct {
	gen uint64
}

type fadeFired struct {
	kind fade.TimerKind
	gen  uint64
}

type snapshotRequest struct {
	reply chan Snapshot
}

func (PointerDown) event()     {}
func (PointerMove) event()     {}
func (PointerUp) event()       {}
func (Scroll) event()          {}
func (Reset) event()           {}
func (Toggle) event()          {}
func (Modifier) event()        {}
func (Interact) event()        {}
func (Connected) event()       {}
func (Disconnected) event()    {}
func (Inbound) event()         {}
func (WriteResult) event()     {}
func (ConfigChanged) event()   {}
func (coalesceDue) event()     {}
func (quiesced) event()        {}
func (fadeFired) event()       {}
func (snapshotRequest) event() {}
