// Package fade implements the visibility state machine of the applet window.
package fade

import (
	"time"

	"github.com/dokzlo13/relayctl/internal/clock"
)

// State is the visibility state.
type State int

const (
	Visible State = iota
	FadingOut
	Hidden
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case FadingOut:
		return "fading_out"
	case Hidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// Config tunes the scheduler.
type Config struct {
	Enabled bool
	// Timeout is the idle period before fading starts.
	Timeout time.Duration
	// Duration is the time taken to fade from fully visible to hidden.
	Duration time.Duration
	// Tick is the opacity update interval while fading.
	Tick time.Duration
}

// DefaultConfig returns the default fade tuning.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Timeout:  3 * time.Second,
		Duration: time.Second,
		Tick:     33 * time.Millisecond,
	}
}

// TimerKind tells which of the scheduler's timers fired.
type TimerKind int

const (
	TimerIdle TimerKind = iota
	TimerTick
)

// FireFunc is called from a timer goroutine. The owner must pass the arguments
// back to Fire on the goroutine that owns the scheduler.
type FireFunc func(kind TimerKind, gen uint64)

// Scheduler drives Visible -> FadingOut -> Hidden. It is not safe for
// concurrent use.
type Scheduler struct {
	cfg   Config
	clock clock.Clock
	fire  FireFunc

	state     State
	opacity   float64
	inhibited bool

	timer clock.Timer
	gen   uint64
}

// New creates a scheduler in the Visible state. Call Start to begin timing.
func New(cfg Config, clk clock.Clock, fire FireFunc) *Scheduler {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		cfg:     cfg,
		clock:   clk,
		fire:    fire,
		state:   Visible,
		opacity: 1,
	}
}

// State returns the current state.
func (s *Scheduler) State() State { return s.state }

// Opacity returns the current opacity in [0, 1].
func (s *Scheduler) Opacity() float64 { return s.opacity }

// Enabled reports whether fading is active.
func (s *Scheduler) Enabled() bool { return s.cfg.Enabled }

// Start arms the idle timer.
func (s *Scheduler) Start() {
	s.restart()
}

// SetEnabled turns fading on or off. Disabling pins the state at Visible.
func (s *Scheduler) SetEnabled(enabled bool) {
	if s.cfg.Enabled == enabled {
		return
	}
	s.cfg.Enabled = enabled
	s.restart()
}

// Poke reports a gesture: the window becomes fully visible and the idle timer
// starts over.
func (s *Scheduler) Poke() {
	if s.state == Hidden {
		return
	}
	s.restart()
}

// SetInhibited reports whether an interaction is in progress. While inhibited
// the window stays visible and no timer runs; the idle timer starts when the
// inhibition ends.
func (s *Scheduler) SetInhibited(inhibited bool) {
	if s.inhibited == inhibited {
		return
	}
	s.inhibited = inhibited
	if s.state == Hidden {
		return
	}
	s.restart()
}

// Fire handles an expired timer. It returns true when the call moved the
// scheduler to Hidden.
func (s *Scheduler) Fire(kind TimerKind, gen uint64) bool {
	if gen != s.gen || s.timer == nil || !s.cfg.Enabled || s.inhibited {
		return false
	}
	s.timer = nil

	switch kind {
	case TimerIdle:
		if s.state != Visible {
			return false
		}
		s.state = FadingOut
		s.opacity = 1
		s.arm(TimerTick, s.cfg.Tick)
		return false

	case TimerTick:
		if s.state != FadingOut {
			return false
		}
		s.opacity -= float64(s.cfg.Tick) / float64(s.cfg.Duration)
		if s.opacity <= 1e-9 {
			s.opacity = 0
			s.state = Hidden
			return true
		}
		s.arm(TimerTick, s.cfg.Tick)
	}
	return false
}

// Stop cancels any running timer.
func (s *Scheduler) Stop() {
	s.cancel()
}

func (s *Scheduler) restart() {
	s.cancel()
	s.state = Visible
	s.opacity = 1
	if s.cfg.Enabled && !s.inhibited {
		s.arm(TimerIdle, s.cfg.Timeout)
	}
}

func (s *Scheduler) arm(kind TimerKind, d time.Duration) {
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		if s.fire != nil {
			s.fire(kind, gen)
		}
	})
}

func (s *Scheduler) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}
