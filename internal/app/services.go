package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/clock"
	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/remote"
	"github.com/dokzlo13/relayctl/internal/worker"
)

// Options customizes service construction.
type Options struct {
	// ConfigPath is watched for reloadable settings when set.
	ConfigPath string
	// Overrides re-applies command-line settings on top of a reloaded file.
	Overrides func(*config.Config)
	// Link replaces the D-Bus client (tests).
	Link remote.Link
	// Clock replaces the real clock (tests).
	Clock clock.Clock
}

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Journal *JournalService

	// High-level services
	Sync   *SyncService
	Status *StatusService
	Reload *ReloadService

	closeOnce sync.Once
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts Options) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize write journal
	var journal worker.Journal
	var journalSource JournalSource
	if cfg.Journal.IsEnabled() {
		js, err := NewJournalService(cfg)
		if err != nil {
			return nil, err
		}
		s.Journal = js
		journal = js.Ledger
		journalSource = js.Ledger
	}

	// Initialize link, controller and writers
	s.Sync = NewSyncService(cfg, opts.Link, opts.Clock, journal)

	// Initialize status service
	s.Status = NewStatusService(cfg, s.Sync.Controller, journalSource)

	// Initialize config reloader
	s.Reload = NewReloadService(opts.ConfigPath, opts.Overrides, s.Sync.Controller)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if s.Journal != nil {
		s.Journal.Start(ctx)
	}
	s.Sync.Start(ctx, onFatalError)
	s.Status.Start(ctx)
	s.Reload.Start(ctx)

	log.Debug().
		Bool("journal", s.Journal != nil).
		Bool("status", s.cfg.Status.Enabled).
		Msg("Services started")
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources. Pending writes are flushed first, bounded by
// the shutdown timeout.
func (s *Services) Close() {
	s.closeOnce.Do(func() {
		if s.Sync != nil {
			s.Sync.Close(s.cfg.ShutdownTimeout.Duration())
		}
		if s.Journal != nil {
			s.Journal.Close()
		}
	})
}
