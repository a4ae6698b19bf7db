// Package coalesce merges rapid successive edits of a property into a single
// outbound write per window.
//
// The coalescer is not safe for concurrent use. Timers never touch its state:
// when a window closes the coalescer calls the due callback with the property
// and a generation number, and the owner is expected to hand both back to Due
// on the goroutine that owns the coalescer. Stale generations are ignored.
package coalesce

import (
	"time"

	"github.com/dokzlo13/relayctl/internal/clock"
	"github.com/dokzlo13/relayctl/internal/property"
)

// Default tuning.
const (
	DefaultWindow       = 40 * time.Millisecond
	DefaultRetryBackoff = 250 * time.Millisecond
)

// PendingWrite is a value ready to be sent to the daemon.
type PendingWrite struct {
	Property property.ID
	Value    float64
	// Attempt is 1 for a first delivery and 2 for the retry.
	Attempt int
	// Seq increases with every write handed out for the property.
	Seq uint64
}

// DueFunc is called from a timer goroutine when a window closes.
type DueFunc func(id property.ID, gen uint64)

type slot struct {
	value   float64
	has     bool
	attempt int

	timer clock.Timer
	gen   uint64

	lastFlush time.Time
	flushed   bool
	seq       uint64
}

// Coalescer is the per-property debouncer.
type Coalescer struct {
	window  time.Duration
	backoff time.Duration
	clock   clock.Clock
	due     DueFunc
	slots   [property.Count]slot
}

// New creates a coalescer. Zero durations fall back to the defaults.
func New(window, retryBackoff time.Duration, clk clock.Clock, due DueFunc) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	if retryBackoff <= 0 {
		retryBackoff = DefaultRetryBackoff
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Coalescer{
		window:  window,
		backoff: retryBackoff,
		clock:   clk,
		due:     due,
	}
}

// Window returns the coalescing window length.
func (c *Coalescer) Window() time.Duration {
	return c.window
}

// Propose records v as the latest desired value of id and arms the window timer
// if none is armed. Earlier unsent values are discarded.
func (c *Coalescer) Propose(id property.ID, v float64) {
	if !id.Valid() {
		return
	}
	s := &c.slots[id]
	s.value = v
	s.has = true
	s.attempt = 1
	if s.timer == nil {
		c.arm(id, c.window)
	}
}

// Pending reports whether id has a value waiting to be flushed.
func (c *Coalescer) Pending(id property.ID) bool {
	return id.Valid() && c.slots[id].has
}

// Due handles a closed window. It returns the write to send, if the generation
// is current and a value is waiting.
func (c *Coalescer) Due(id property.ID, gen uint64) (PendingWrite, bool) {
	if !id.Valid() {
		return PendingWrite{}, false
	}
	s := &c.slots[id]
	if gen != s.gen || s.timer == nil {
		return PendingWrite{}, false
	}
	s.timer = nil
	return c.take(id)
}

// Flush ends a session for id. The waiting value is returned at once when the
// minimum spacing since the previous write has elapsed; otherwise the timer is
// left (or armed) to fire at the earliest allowed instant.
func (c *Coalescer) Flush(id property.ID) (PendingWrite, bool) {
	if !id.Valid() {
		return PendingWrite{}, false
	}
	s := &c.slots[id]
	if !s.has {
		return PendingWrite{}, false
	}
	if wait := c.spacing(s); wait > 0 {
		c.stop(s)
		c.arm(id, wait)
		return PendingWrite{}, false
	}
	c.stop(s)
	return c.take(id)
}

// Bypass hands out v for immediate delivery, skipping the window. Any waiting
// value for id is superseded.
func (c *Coalescer) Bypass(id property.ID, v float64) PendingWrite {
	if !id.Valid() {
		return PendingWrite{}
	}
	s := &c.slots[id]
	c.stop(s)
	s.value = v
	s.has = true
	s.attempt = 1
	w, _ := c.take(id)
	return w
}

// Retry schedules a second delivery of w after the retry backoff. It returns
// false, and schedules nothing, when w was already a retry or when a newer value
// has been proposed since w was handed out.
func (c *Coalescer) Retry(w PendingWrite) bool {
	if !w.Property.Valid() || w.Attempt >= 2 {
		return false
	}
	s := &c.slots[w.Property]
	if s.has || w.Seq != s.seq {
		return false
	}
	s.value = w.Value
	s.has = true
	s.attempt = w.Attempt + 1
	c.stop(s)
	c.arm(w.Property, c.backoff)
	return true
}

// Latest reports whether seq is the newest write handed out for id with no
// newer value waiting.
func (c *Coalescer) Latest(id property.ID, seq uint64) bool {
	if !id.Valid() {
		return false
	}
	s := &c.slots[id]
	return !s.has && s.seq == seq
}

// Cancel drops the waiting value of id, if any, and reports whether there was one.
func (c *Coalescer) Cancel(id property.ID) bool {
	if !id.Valid() {
		return false
	}
	s := &c.slots[id]
	had := s.has
	c.stop(s)
	s.has = false
	return had
}

// FlushAll returns every waiting value, ignoring spacing. Used on shutdown.
func (c *Coalescer) FlushAll() []PendingWrite {
	var out []PendingWrite
	for _, id := range property.All {
		s := &c.slots[id]
		if !s.has {
			continue
		}
		c.stop(s)
		if w, ok := c.take(id); ok {
			out = append(out, w)
		}
	}
	return out
}

// Stop cancels all timers and drops waiting values.
func (c *Coalescer) Stop() {
	for i := range c.slots {
		c.stop(&c.slots[i])
		c.slots[i].has = false
	}
}

func (c *Coalescer) take(id property.ID) (PendingWrite, bool) {
	s := &c.slots[id]
	if !s.has {
		return PendingWrite{}, false
	}
	s.has = false
	s.seq++
	s.lastFlush = c.clock.Now()
	s.flushed = true
	return PendingWrite{Property: id, Value: s.value, Attempt: s.attempt, Seq: s.seq}, true
}

// spacing returns how long until another write for s keeps the minimum
// interval since the previous one.
func (c *Coalescer) spacing(s *slot) time.Duration {
	if !s.flushed {
		return 0
	}
	if wait := c.window - c.clock.Now().Sub(s.lastFlush); wait > 0 {
		return wait
	}
	return 0
}

func (c *Coalescer) arm(id property.ID, d time.Duration) {
	s := &c.slots[id]
	s.gen++
	gen := s.gen
	s.timer = c.clock.AfterFunc(d, func() {
		if c.due != nil {
			c.due(id, gen)
		}
	})
}

func (c *Coalescer) stop(s *slot) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}
