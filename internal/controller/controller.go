// Package controller owns the synchronization state of the applet.
//
// Everything that mutates the property store, the interaction state, the
// coalescer or the fade scheduler runs on the single goroutine executing Run.
// Other goroutines (UI, watcher, worker pool, timers) only post events.
package controller

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/clock"
	"github.com/dokzlo13/relayctl/internal/coalesce"
	"github.com/dokzlo13/relayctl/internal/fade"
	"github.com/dokzlo13/relayctl/internal/gesture"
	"github.com/dokzlo13/relayctl/internal/ledger"
	"github.com/dokzlo13/relayctl/internal/property"
	"github.com/dokzlo13/relayctl/internal/remote"
	"github.com/dokzlo13/relayctl/internal/worker"
)

// ErrClosed is returned by Snapshot once Run has returned.
var ErrClosed = errors.New("controller closed")

var errNotSubmitted = errors.New("write not accepted by worker pool")

// Default tuning.
const (
	DefaultInboxSize  = 256
	DefaultQuiescence = 300 * time.Millisecond

	// echoTTL bounds how long a sent value is remembered for echo matching.
	echoTTL     = 2 * time.Second
	maxInflight = 8
)

// Config tunes the controller.
type Config struct {
	Window       time.Duration
	RetryBackoff time.Duration
	// Quiescence is the scroll inactivity that ends a scroll session.
	Quiescence time.Duration
	FineRatio  float64
	InboxSize  int
	Fade       fade.Config
	Defaults   property.Defaults
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		Window:       coalesce.DefaultWindow,
		RetryBackoff: coalesce.DefaultRetryBackoff,
		Quiescence:   DefaultQuiescence,
		FineRatio:    gesture.DefaultFineRatio,
		InboxSize:    DefaultInboxSize,
		Fade:         fade.DefaultConfig(),
		Defaults:     property.StandardDefaults(),
	}
}

// Writer accepts writes for asynchronous delivery. Results come back through
// PostResult.
type Writer interface {
	Submit(w coalesce.PendingWrite) bool
}

// Journal records controller decisions about writes.
type Journal interface {
	Append(e ledger.Entry) error
}

type sentValue struct {
	value float64
	at    time.Time
}

// Controller is the interaction loop.
type Controller struct {
	cfg   Config
	clock clock.Clock

	store     *property.Store
	mapper    gesture.Mapper
	coalescer *coalesce.Coalescer
	fade      *fade.Scheduler

	writer   Writer
	journal  Journal
	observer func(Snapshot)
	onHidden func()

	inbox     chan Event
	closing   chan struct{}
	closeOnce sync.Once

	mode    Mode
	active  property.ID
	focus   property.ID
	fine    bool
	carry   float64
	lastPos float64
	extent  float64

	quiesceTimer clock.Timer
	quiesceGen   uint64

	// inflight lists values sent per property whose echo has not been seen.
	inflight  [property.Count][]sentValue
	connected bool
	version   uint64
}

// New creates a controller. Wire the writer, journal and observers before
// calling Run.
func New(cfg Config, clk clock.Clock) *Controller {
	def := DefaultConfig()
	if cfg.Quiescence <= 0 {
		cfg.Quiescence = def.Quiescence
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = def.InboxSize
	}
	if clk == nil {
		clk = clock.Real{}
	}

	c := &Controller{
		cfg:     cfg,
		clock:   clk,
		store:   property.NewStore(cfg.Defaults),
		mapper:  gesture.NewMapper(cfg.FineRatio),
		inbox:   make(chan Event, cfg.InboxSize),
		closing: make(chan struct{}),
	}
	c.coalescer = coalesce.New(cfg.Window, cfg.RetryBackoff, clk, func(id property.ID, gen uint64) {
		c.post(coalesceDue{property: id, gen: gen})
	})
	c.fade = fade.New(cfg.Fade, clk, func(kind fade.TimerKind, gen uint64) {
		c.post(fadeFired{kind: kind, gen: gen})
	})
	c.focus = c.firstEnabled()
	return c
}

// SetWriter sets where writes are submitted.
func (c *Controller) SetWriter(w Writer) { c.writer = w }

// SetJournal sets where retries are recorded.
func (c *Controller) SetJournal(j Journal) { c.journal = j }

// OnSnapshot registers fn to receive a snapshot after every handled event. fn
// runs on the controller goroutine and must not block.
func (c *Controller) OnSnapshot(fn func(Snapshot)) { c.observer = fn }

// OnHidden registers fn to be called once the window has faded out.
func (c *Controller) OnHidden(fn func()) { c.onHidden = fn }

// Post queues ev for the loop (thread-safe, non-blocking).
// Returns false if the controller is closing or the inbox is full.
func (c *Controller) Post(ev Event) bool {
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case c.inbox <- ev:
		return true
	default:
		log.Warn().Type("event", ev).Msg("Controller inbox full, dropping event")
		return false
	}
}

// Send queues ev, waiting for room in the inbox. It returns false if ctx ends
// or the controller closes first. Services use it for events that must not be
// dropped.
func (c *Controller) Send(ctx context.Context, ev Event) bool {
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case <-c.closing:
		return false
	case <-ctx.Done():
		return false
	case c.inbox <- ev:
		return true
	}
}

// post queues ev and blocks until there is space or the controller closes.
// Used for timer callbacks and results, which must not be lost.
func (c *Controller) post(ev Event) bool {
	select {
	case <-c.closing:
		return false
	case c.inbox <- ev:
		return true
	}
}

// PostResult hands a write result to the loop. It satisfies worker.ResultFunc.
func (c *Controller) PostResult(r worker.Result) {
	c.post(WriteResult{Result: r})
}

// Snapshot returns the current state, computed on the loop goroutine.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)

	select {
	case <-c.closing:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case c.inbox <- snapshotRequest{reply: reply}:
	}

	select {
	case <-c.closing:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case s := <-reply:
		return s, nil
	}
}

// LinkSink adapts the controller to the watcher's output.
func (c *Controller) LinkSink() remote.Sink {
	return linkSink{c: c}
}

type linkSink struct{ c *Controller }

func (s linkSink) Connected()                   { s.c.post(Connected{}) }
func (s linkSink) Notify(n remote.Notification) { s.c.post(Inbound{Notification: n}) }
func (s linkSink) Disconnected(err error)       { s.c.post(Disconnected{Err: err}) }

// Run consumes events until ctx is cancelled. On the way out it flushes every
// waiting write to the writer; the caller closes the writer afterwards.
func (c *Controller) Run(ctx context.Context) error {
	defer c.closeOnce.Do(func() { close(c.closing) })

	c.fade.Start()
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.inbox:
			if c.handle(ev) {
				c.publish()
			}
		}
	}
}

// shutdown handles events already queued, then sends every waiting value.
func (c *Controller) shutdown() {
	for n := len(c.inbox); n > 0; n-- {
		c.handle(<-c.inbox)
	}

	c.stopQuiescence()
	c.fade.Stop()
	flushed := c.coalescer.FlushAll()
	for _, w := range flushed {
		c.dispatch(w)
	}
	c.coalescer.Stop()
	log.Debug().Int("flushed", len(flushed)).Msg("Controller stopped")
}

// handle applies one event and reports whether observers should be notified.
func (c *Controller) handle(ev Event) bool {
	switch e := ev.(type) {
	case PointerDown:
		c.pointerDown(e)
	case PointerMove:
		c.pointerMove(e)
	case PointerUp:
		c.pointerUp()
	case Scroll:
		c.scroll(e)
	case Reset:
		c.reset(e.Property)
	case Toggle:
		c.toggle(e.Property)
	case Modifier:
		c.fine = e.Held
		if e.Held {
			c.fade.Poke()
		}
	case Interact:
		c.fade.Poke()
	case Connected:
		c.linkUp()
	case Disconnected:
		c.linkDown(e.Err)
	case Inbound:
		c.inbound(e.Notification)
	case WriteResult:
		c.writeResult(e.Result)
	case ConfigChanged:
		c.reconfigure(e)
	case coalesceDue:
		if w, ok := c.coalescer.Due(e.property, e.gen); ok {
			c.dispatch(w)
		}
	case quiesced:
		if e.gen == c.quiesceGen && c.mode == Scrolling {
			c.endInteraction()
		}
	case fadeFired:
		if c.fade.Fire(e.kind, e.gen) {
			c.hidden()
		}
	case snapshotRequest:
		e.reply <- c.snapshot()
		return false
	default:
		log.Warn().Type("event", ev).Msg("Unknown controller event")
		return false
	}
	return true
}

// ============================================================================
// Gestures
// ============================================================================

func (c *Controller) pointerDown(e PointerDown) {
	if !c.store.Enabled(e.Property) {
		return
	}
	c.fade.Poke()
	if property.DomainOf(e.Property).Kind == property.KindBool {
		c.toggle(e.Property)
		return
	}

	c.endInteraction()
	c.mode = Dragging
	c.active = e.Property
	c.focus = e.Property
	c.carry = 0
	c.lastPos = e.Pos
	c.extent = e.Extent
	c.fade.SetInhibited(true)

	c.edit(e.Property, c.mapper.Position(e.Property, e.Pos, e.Extent))
}

func (c *Controller) pointerMove(e PointerMove) {
	if c.mode != Dragging {
		return
	}
	c.fade.Poke()
	id := c.active
	dx := e.Pos - c.lastPos
	c.lastPos = e.Pos

	value, carry := c.mapper.Displace(id, c.store.Get(id), dx, c.extent, c.carry)
	c.carry = carry
	c.edit(id, value)
}

func (c *Controller) pointerUp() {
	if c.mode != Dragging {
		return
	}
	c.fade.Poke()
	c.endInteraction()
}

func (c *Controller) scroll(e Scroll) {
	if !c.store.Enabled(e.Property) || e.Ticks == 0 || c.mode == Dragging {
		return
	}
	c.fade.Poke()
	if c.mode == Scrolling && c.active != e.Property {
		c.endInteraction()
	}
	c.mode = Scrolling
	c.active = e.Property
	c.focus = e.Property
	c.fade.SetInhibited(true)
	c.armQuiescence()

	c.edit(e.Property, c.mapper.Scroll(e.Property, c.store.Get(e.Property), e.Ticks, e.Fine || c.fine))
}

func (c *Controller) reset(id property.ID) {
	if !c.store.Enabled(id) {
		return
	}
	c.fade.Poke()
	c.focus = id
	if c.active == id {
		c.carry = 0
	}

	v := c.store.Reset(id)
	c.store.SetPending(id, true)
	log.Debug().Str("property", id.String()).Float64("value", v).Msg("Reset to default")
	c.dispatch(c.coalescer.Bypass(id, v))
}

func (c *Controller) toggle(id property.ID) {
	if !c.store.Enabled(id) || property.DomainOf(id).Kind != property.KindBool {
		return
	}
	c.fade.Poke()
	c.focus = id
	c.edit(id, c.mapper.Toggle(c.store.Get(id)))
}

// edit stores v optimistically and proposes it for delivery.
func (c *Controller) edit(id property.ID, v float64) {
	if !c.store.Set(id, v) {
		return
	}
	c.store.SetPending(id, true)
	c.coalescer.Propose(id, c.store.Get(id))
}

// endInteraction leaves Dragging or Scrolling and flushes the session.
func (c *Controller) endInteraction() {
	if c.mode == Idle {
		return
	}
	id := c.active
	c.mode = Idle
	c.carry = 0
	c.stopQuiescence()
	c.fade.SetInhibited(false)

	if w, ok := c.coalescer.Flush(id); ok {
		c.dispatch(w)
	}
}

func (c *Controller) armQuiescence() {
	c.stopQuiescence()
	gen := c.quiesceGen
	c.quiesceTimer = c.clock.AfterFunc(c.cfg.Quiescence, func() {
		c.post(quiesced{gen: gen})
	})
}

func (c *Controller) stopQuiescence() {
	if c.quiesceTimer != nil {
		c.quiesceTimer.Stop()
		c.quiesceTimer = nil
	}
	c.quiesceGen++
}

// ============================================================================
// Writes
// ============================================================================

func (c *Controller) dispatch(w coalesce.PendingWrite) {
	id := w.Property
	if !id.Valid() {
		return
	}
	c.store.MarkSent(id, w.Value, c.clock.Now())
	c.store.SetPending(id, true)
	c.rememberSent(id, w.Value)

	if c.writer == nil || !c.writer.Submit(w) {
		c.writeResult(worker.Result{Write: w, Err: remote.ErrUnavailable, Cause: errNotSubmitted})
	}
}

func (c *Controller) writeResult(r worker.Result) {
	w := r.Write
	id := w.Property
	if !id.Valid() {
		return
	}
	latest := c.coalescer.Latest(id, w.Seq)

	switch {
	case r.Err == nil:
		c.store.Confirm(id, w.Value)
		if latest {
			c.store.SetPending(id, false)
			c.store.SetSoftFail(id, false)
		}

	case errors.Is(r.Err, remote.ErrRejected):
		c.forgetSent(id, w.Value)
		if !latest {
			return
		}
		c.store.SetPending(id, false)
		rec := c.store.Record(id)
		if rec.ConfirmedKnown && sameValue(id, rec.Value, w.Value) {
			c.store.Set(id, rec.Confirmed)
			log.Warn().
				Str("property", id.String()).
				Float64("rejected", w.Value).
				Float64("reverted_to", rec.Confirmed).
				Msg("Daemon rejected value, reverted")
		}

	default:
		c.forgetSent(id, w.Value)
		if c.coalescer.Retry(w) {
			log.Info().
				Err(r.Cause).
				Str("property", id.String()).
				Dur("backoff", c.cfg.RetryBackoff).
				Msg("Write failed, retrying once")
			c.recordRetry(w, r.Cause)
			return
		}
		if latest {
			c.store.SetPending(id, false)
			c.store.SetSoftFail(id, true)
			log.Warn().
				Err(r.Cause).
				Str("property", id.String()).
				Float64("value", w.Value).
				Msg("Write failed after retry, keeping local value")
		}
	}
}

func (c *Controller) recordRetry(w coalesce.PendingWrite, cause error) {
	if c.journal == nil {
		return
	}
	e := ledger.Entry{
		EventType: ledger.EventWriteRetry,
		Timestamp: c.clock.Now(),
		Property:  w.Property.String(),
		Value:     w.Value,
		Attempt:   w.Attempt + 1,
		Seq:       w.Seq,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := c.journal.Append(e); err != nil {
		log.Debug().Err(err).Msg("Failed to journal retry")
	}
}

// ============================================================================
// Inbound state
// ============================================================================

func (c *Controller) linkUp() {
	c.connected = true
	log.Info().Msg("Gamma relay link up")

	// Values that could not be delivered are sent again once the daemon is back.
	for _, id := range property.All {
		rec := c.store.Record(id)
		if rec.SoftFail && rec.Enabled {
			c.store.SetPending(id, true)
			c.coalescer.Propose(id, rec.Value)
		}
	}
}

func (c *Controller) linkDown(err error) {
	if c.connected {
		log.Warn().Err(err).Msg("Gamma relay link down, keeping last known values")
	}
	c.connected = false
	for i := range c.inflight {
		c.inflight[i] = nil
	}
}

func (c *Controller) inbound(n remote.Notification) {
	id := n.Property
	if !id.Valid() {
		return
	}
	v := property.DomainOf(id).Clamp(n.Value)
	c.store.Confirm(id, v)

	// Echo of a value this process sent.
	if i := c.matchSent(id, v); i >= 0 {
		newest := i == len(c.inflight[id])-1
		c.inflight[id] = c.inflight[id][i+1:]
		if newest && !c.coalescer.Pending(id) {
			c.store.Set(id, v)
			c.store.SetPending(id, false)
			c.store.SetSoftFail(id, false)
		}
		return
	}

	rec := c.store.Record(id)
	if rec.SoftFail && c.coalescer.Pending(id) {
		return
	}

	// External change: it becomes the base for the next gesture event and any
	// value computed from the old base is dropped.
	if c.store.Set(id, v) {
		log.Debug().Str("property", id.String()).Float64("value", v).Msg("External change")
	}
	if c.coalescer.Cancel(id) {
		c.store.SetPending(id, len(c.inflight[id]) > 0)
	}
	c.store.SetSoftFail(id, false)
}

func (c *Controller) reconfigure(e ConfigChanged) {
	for _, id := range property.All {
		c.store.SetDefault(id, e.Defaults.Values[id])
		c.store.SetEnabled(id, e.Defaults.Enabled[id])
	}
	if c.mode != Idle && !c.store.Enabled(c.active) {
		c.endInteraction()
	}
	if !c.store.Enabled(c.focus) {
		c.focus = c.firstEnabled()
	}
	c.fade.SetEnabled(e.FadeEnabled)
	log.Info().Bool("fade", e.FadeEnabled).Msg("Configuration applied")
}

func (c *Controller) hidden() {
	log.Info().Msg("Faded out")
	if c.onHidden != nil {
		c.onHidden()
	}
}

// ============================================================================
// Echo bookkeeping
// ============================================================================

func (c *Controller) rememberSent(id property.ID, v float64) {
	list := append(c.inflight[id], sentValue{value: v, at: c.clock.Now()})
	if len(list) > maxInflight {
		list = list[len(list)-maxInflight:]
	}
	c.inflight[id] = list
}

func (c *Controller) forgetSent(id property.ID, v float64) {
	list := c.inflight[id]
	for i := len(list) - 1; i >= 0; i-- {
		if sameValue(id, list[i].value, v) {
			c.inflight[id] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// matchSent returns the index of the newest remembered value equal to v, or -1.
func (c *Controller) matchSent(id property.ID, v float64) int {
	now := c.clock.Now()
	list := c.inflight[id]
	start := 0
	for start < len(list) && now.Sub(list[start].at) > echoTTL {
		start++
	}
	list = list[start:]
	c.inflight[id] = list

	for i := len(list) - 1; i >= 0; i-- {
		if sameValue(id, list[i].value, v) {
			return i
		}
	}
	return -1
}

func sameValue(id property.ID, a, b float64) bool {
	return math.Abs(a-b) < property.DomainOf(id).Step*1e-3
}

// ============================================================================
// Observers
// ============================================================================

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		Version:   c.version,
		Records:   c.store.Snapshot(),
		Mode:      c.mode,
		Active:    c.active,
		Focus:     c.focus,
		Fine:      c.fine,
		Fade:      c.fade.State(),
		Opacity:   c.fade.Opacity(),
		Connected: c.connected,
	}
}

func (c *Controller) publish() {
	c.version++
	if c.observer != nil {
		c.observer(c.snapshot())
	}
}

func (c *Controller) firstEnabled() property.ID {
	for _, id := range property.All {
		if c.store.Enabled(id) {
			return id
		}
	}
	return property.Temperature
}
