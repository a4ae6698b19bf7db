package app

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/clock"
	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/controller"
	"github.com/dokzlo13/relayctl/internal/fade"
	"github.com/dokzlo13/relayctl/internal/remote"
	"github.com/dokzlo13/relayctl/internal/remote/gammarelay"
	"github.com/dokzlo13/relayctl/internal/worker"
)

// SyncService wraps the synchronization components: link, change watcher,
// controller and write pool.
type SyncService struct {
	cfg *config.Config

	Link       remote.Link
	Watcher    *remote.Watcher
	Controller *controller.Controller
	Pool       *worker.Pool

	started bool
	done    chan struct{}
}

// NewSyncService creates the components without starting them. A nil link
// selects the D-Bus client for the configured service.
func NewSyncService(cfg *config.Config, link remote.Link, clk clock.Clock, journal worker.Journal) *SyncService {
	if link == nil {
		link = gammarelay.New(gammarelay.WithService(cfg.Remote.Service))
	}

	ctrl := controller.New(ControllerConfig(cfg), clk)

	pool := worker.New(link, worker.Config{
		Workers:   cfg.Writer.Workers,
		QueueSize: cfg.Writer.QueueSize,
		RateLimit: cfg.Writer.RateLimitRPS,
		Timeout:   cfg.Remote.WriteTimeout.Duration(),
	}, ctrl.PostResult, journal)

	ctrl.SetWriter(pool)
	if journal != nil {
		ctrl.SetJournal(journal)
	}

	watcher := remote.NewWatcherWithConfig(link, remote.WatcherConfig{
		MinBackoff:    cfg.Remote.MinRetryBackoff.Duration(),
		MaxBackoff:    cfg.Remote.MaxRetryBackoff.Duration(),
		Multiplier:    cfg.Remote.RetryMultiplier,
		MaxReconnects: cfg.Remote.MaxReconnects,
	})

	return &SyncService{
		cfg:        cfg,
		Link:       link,
		Watcher:    watcher,
		Controller: ctrl,
		Pool:       pool,
		done:       make(chan struct{}),
	}
}

// ControllerConfig converts the file configuration into controller tuning.
func ControllerConfig(cfg *config.Config) controller.Config {
	return controller.Config{
		Window:       cfg.Sync.Window.Duration(),
		RetryBackoff: cfg.Sync.RetryBackoff.Duration(),
		Quiescence:   cfg.Sync.Quiescence.Duration(),
		FineRatio:    cfg.Sync.FineRatio,
		InboxSize:    cfg.Sync.InboxSize,
		Fade: fade.Config{
			Enabled:  cfg.Fade.IsEnabled(),
			Timeout:  cfg.Fade.Timeout.Duration(),
			Duration: cfg.Fade.Duration.Duration(),
			Tick:     cfg.Fade.Tick.Duration(),
		},
		Defaults: cfg.Defaults(),
	}
}

// Start runs the controller loop and the change watcher.
// The optional onFatalError callback is called when the watcher gives up.
func (s *SyncService) Start(ctx context.Context, onFatalError func(error)) {
	s.started = true
	go func() {
		defer close(s.done)
		if err := s.Controller.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Controller error")
		}
	}()

	go func() {
		if err := s.Watcher.Run(ctx, s.Controller.LinkSink()); err != nil {
			if errors.Is(err, remote.ErrMaxReconnectsExceeded) {
				log.Error().Msg("Change stream: max reconnects exceeded, triggering shutdown")
				if onFatalError != nil {
					onFatalError(err)
				}
			} else {
				log.Error().Err(err).Msg("Change stream error")
			}
		}
	}()
}

// Close waits for the controller to flush its pending writes, drains the write
// pool and releases the link. It must be called after the start context is
// cancelled.
func (s *SyncService) Close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.started {
		select {
		case <-s.done:
		case <-ctx.Done():
			log.Warn().Msg("Controller did not stop in time")
		}
	}

	s.Pool.Close(ctx)

	if c, ok := s.Link.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close link")
		}
	}
}
