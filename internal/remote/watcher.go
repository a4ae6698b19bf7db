package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/property"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// WatcherConfig contains configuration for change stream reconnection.
type WatcherConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultWatcherConfig returns sensible defaults for watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		MinBackoff:    500 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		Multiplier:    2.0,
		MaxReconnects: 0, // infinite
	}
}

// Sink receives the watcher's output. Calls are made from the watcher
// goroutine; implementations should only hand the data over to their owner.
type Sink interface {
	// Connected is called after a fresh read, before the read values are delivered.
	Connected()
	// Notify delivers a complete property value.
	Notify(n Notification)
	// Disconnected is called when a session ends with the error that ended it.
	Disconnected(err error)
}

// Watcher turns Link.Watch into an infinite, restartable stream: every session
// starts with a fresh read of all properties and sessions are restarted with
// exponential backoff.
type Watcher struct {
	link   Link
	config WatcherConfig
}

// NewWatcher creates a watcher with default configuration.
func NewWatcher(link Link) *Watcher {
	return NewWatcherWithConfig(link, DefaultWatcherConfig())
}

// NewWatcherWithConfig creates a watcher with custom configuration.
func NewWatcherWithConfig(link Link, config WatcherConfig) *Watcher {
	def := DefaultWatcherConfig()
	if config.MinBackoff <= 0 {
		config.MinBackoff = def.MinBackoff
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = config.MinBackoff
	}
	if config.Multiplier < 1 {
		config.Multiplier = def.Multiplier
	}
	return &Watcher{link: link, config: config}
}

// Run keeps a session open until ctx is cancelled.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded.
func (w *Watcher) Run(ctx context.Context, sink Sink) error {
	retryCount := 0
	currentBackoff := w.config.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := w.session(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		sink.Disconnected(err)

		// A session that got as far as the fresh read resets the backoff.
		if connected {
			retryCount = 0
			currentBackoff = w.config.MinBackoff
		}
		retryCount++

		if w.config.MaxReconnects > 0 && retryCount > w.config.MaxReconnects {
			log.Error().
				Int("max_reconnects", w.config.MaxReconnects).
				Msg("Change stream: max reconnects exceeded, giving up")
			return ErrMaxReconnectsExceeded
		}

		log.Warn().
			Err(err).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Int("max_reconnects", w.config.MaxReconnects).
			Msg("Change stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		// Calculate next backoff with multiplier, capped at max
		nextBackoff := time.Duration(float64(currentBackoff) * w.config.Multiplier)
		if nextBackoff > w.config.MaxBackoff {
			nextBackoff = w.config.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

// session reads every property, then blocks on the change stream. It reports
// whether the fresh read succeeded.
func (w *Watcher) session(ctx context.Context, sink Sink) (bool, error) {
	var values [property.Count]float64
	for _, id := range property.All {
		v, err := w.link.Read(ctx, id)
		if err != nil {
			return false, fmt.Errorf("read %s: %w", id, err)
		}
		values[id] = v
	}

	log.Info().Msg("Connected to gamma relay")
	sink.Connected()
	for _, id := range property.All {
		sink.Notify(Notification{Property: id, Value: values[id]})
	}

	err := w.link.Watch(ctx, sink.Notify)
	if err == nil {
		err = ErrDisconnected
	}
	return true, err
}
