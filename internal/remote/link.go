// Package remote defines the contract between the synchronization core and the
// gamma relay daemon.
package remote

import (
	"context"
	"errors"

	"github.com/dokzlo13/relayctl/internal/property"
)

var (
	// ErrUnavailable means the daemon could not be reached or the bus failed.
	ErrUnavailable = errors.New("daemon unavailable")
	// ErrRejected means the daemon refused the value.
	ErrRejected = errors.New("value rejected by daemon")
	// ErrDisconnected means the change stream ended.
	ErrDisconnected = errors.New("change stream disconnected")
)

// Notification is a complete value reported by the daemon.
type Notification struct {
	Property property.ID
	Value    float64
}

// Link is the request/response and subscription surface of the daemon.
// Implementations must be safe for concurrent use: reads and watches run on the
// watcher goroutine while writes run on the worker pool.
type Link interface {
	// Read returns the current value of a property.
	Read(ctx context.Context, id property.ID) (float64, error)
	// Write sets a property to an absolute value.
	Write(ctx context.Context, id property.ID, v float64) error
	// Watch delivers change notifications until the stream ends or ctx is done.
	// It returns ErrDisconnected (possibly wrapped) when the stream ends.
	Watch(ctx context.Context, notify func(Notification)) error
}

// Classify reduces err to one of the sentinel errors. Unknown errors count as
// ErrUnavailable.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRejected):
		return ErrRejected
	case errors.Is(err, ErrDisconnected):
		return ErrDisconnected
	default:
		return ErrUnavailable
	}
}
