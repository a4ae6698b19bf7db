// Package remotetest provides an in-memory remote.Link for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dokzlo13/relayctl/internal/property"
	"github.com/dokzlo13/relayctl/internal/remote"
)

// Write is a recorded Link.Write call.
type Write struct {
	Property property.ID
	Value    float64
	Err      error
}

// Link is a scriptable fake daemon. Successful writes update its values and,
// when Echo is set, are reported back through an active Watch.
type Link struct {
	mu        sync.Mutex
	values    [property.Count]float64
	writes    []Write
	writeErrs [property.Count][]error
	readErr   error
	echo      bool
	hook      func(Write)

	notes    chan remote.Notification
	drop     chan struct{}
	sessions chan struct{}
}

// New creates a fake holding the standard default values.
func New() *Link {
	l := &Link{
		notes:    make(chan remote.Notification, 64),
		drop:     make(chan struct{}, 1),
		sessions: make(chan struct{}, 16),
	}
	l.values = property.StandardDefaults().Values
	return l
}

// SetValue changes a value without notifying watchers.
func (l *Link) SetValue(id property.ID, v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[id] = v
}

// Value returns the daemon-side value.
func (l *Link) Value(id property.ID) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.values[id]
}

// SetEcho makes successful writes produce a change notification.
func (l *Link) SetEcho(echo bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.echo = echo
}

// SetReadErr makes every Read fail with err until cleared with nil.
func (l *Link) SetReadErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// FailWrites queues errors returned by the next writes of id, in order.
func (l *Link) FailWrites(id property.ID, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErrs[id] = append(l.writeErrs[id], errs...)
}

// OnWrite registers a hook called after every write, outside the lock.
func (l *Link) OnWrite(fn func(Write)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = fn
}

// Writes returns a copy of the recorded writes.
func (l *Link) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Write, len(l.writes))
	copy(out, l.writes)
	return out
}

// WritesFor returns the recorded writes of one property.
func (l *Link) WritesFor(id property.ID) []Write {
	var out []Write
	for _, w := range l.Writes() {
		if w.Property == id {
			out = append(out, w)
		}
	}
	return out
}

// Push delivers a notification to the active watch, as if another client had
// changed the value.
func (l *Link) Push(id property.ID, v float64) {
	l.SetValue(id, v)
	l.notes <- remote.Notification{Property: id, Value: v}
}

// Disconnect ends the active watch with remote.ErrDisconnected.
func (l *Link) Disconnect() {
	select {
	case l.drop <- struct{}{}:
	default:
	}
}

// Sessions signals every time a Watch starts.
func (l *Link) Sessions() <-chan struct{} {
	return l.sessions
}

func (l *Link) Read(ctx context.Context, id property.ID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return 0, fmt.Errorf("read %s: %w", id, l.readErr)
	}
	return l.values[id], nil
}

func (l *Link) Write(ctx context.Context, id property.ID, v float64) error {
	l.mu.Lock()
	var err error
	if q := l.writeErrs[id]; len(q) > 0 {
		err = q[0]
		l.writeErrs[id] = q[1:]
	}
	if err == nil {
		l.values[id] = v
	}
	rec := Write{Property: id, Value: v, Err: err}
	l.writes = append(l.writes, rec)
	echo := l.echo && err == nil
	hook := l.hook
	l.mu.Unlock()

	if echo {
		select {
		case l.notes <- remote.Notification{Property: id, Value: v}:
		default:
		}
	}
	if hook != nil {
		hook(rec)
	}
	return err
}

func (l *Link) Watch(ctx context.Context, notify func(remote.Notification)) error {
	select {
	case l.sessions <- struct{}{}:
	default:
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.drop:
			return remote.ErrDisconnected
		case n := <-l.notes:
			notify(n)
		}
	}
}

var _ remote.Link = (*Link)(nil)
