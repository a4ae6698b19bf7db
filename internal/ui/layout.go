package ui

import (
	"math"

	"github.com/dokzlo13/relayctl/internal/property"
)

// Column widths in cells.
const (
	caretWidth  = 2
	labelWidth  = 12
	valueWidth  = 8
	switchWidth = 6
	minTrack    = 4
)

// Options configures the applet window.
type Options struct {
	HideCaret    bool
	HideLabels   bool
	HideValue    bool
	OuterPadding int
	Width        int
	Height       int

	// Visible lists the properties to show, in order. Empty shows all.
	Visible []property.ID
}

// row is the placement of one control.
type row struct {
	Property property.ID
	Y        int
	TrackX   int
	TrackW   int
}

// layout maps terminal cells to controls.
type layout struct {
	rows  []row
	width int
}

// sameRows reports whether l shows exactly visible, in order.
func (l layout) sameRows(visible []property.ID) bool {
	if len(l.rows) != len(visible) {
		return false
	}
	for i, r := range l.rows {
		if r.Property != visible[i] {
			return false
		}
	}
	return true
}

func newLayout(opts Options, visible []property.ID) layout {
	pad := opts.OuterPadding
	if pad < 0 {
		pad = 0
	}

	x := pad
	if !opts.HideCaret {
		x += caretWidth
	}
	if !opts.HideLabels {
		x += labelWidth
	}
	track := opts.Width - x - pad
	if !opts.HideValue {
		track -= valueWidth
	}
	if track < minTrack {
		track = minTrack
	}

	l := layout{width: opts.Width}
	for i, id := range visible {
		l.rows = append(l.rows, row{Property: id, Y: pad + i, TrackX: x, TrackW: track})
	}
	return l
}

// at returns the control on terminal row y.
func (l layout) at(y int) (row, bool) {
	for _, r := range l.rows {
		if r.Y == y {
			return r, true
		}
	}
	return row{}, false
}

// index returns the position of id among the visible controls, or -1.
func (l layout) index(id property.ID) int {
	for i, r := range l.rows {
		if r.Property == id {
			return i
		}
	}
	return -1
}

// onTrack reports whether column x falls on the slider of r.
func (r row) onTrack(x int) bool {
	return x >= r.TrackX && x < r.TrackX+r.TrackW
}

// extent is the drag length of the track: the distance between the first and
// last cell.
func (r row) extent() float64 {
	return float64(r.TrackW - 1)
}

// pos converts column x to a position along the track, clamped to its ends.
func (r row) pos(x int) float64 {
	p := float64(x - r.TrackX)
	return math.Max(0, math.Min(p, r.extent()))
}

// knob returns the track cell representing v.
func (r row) knob(v float64) int {
	dom := property.DomainOf(r.Property)
	span := dom.Span()
	if span <= 0 {
		return 0
	}
	frac := (dom.Clamp(v) - dom.Min) / span
	return int(math.Round(frac * r.extent()))
}
