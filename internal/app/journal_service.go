package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/db"
	"github.com/dokzlo13/relayctl/internal/ledger"
)

// JournalService owns the in-memory write journal and its retention.
type JournalService struct {
	cfg *config.Config

	DB     *db.DB
	Ledger *ledger.Ledger
}

// NewJournalService opens the journal database.
func NewJournalService(cfg *config.Config) (*JournalService, error) {
	database, err := db.OpenMemory()
	if err != nil {
		return nil, err
	}
	return &JournalService{
		cfg:    cfg,
		DB:     database,
		Ledger: ledger.New(database.DB),
	}, nil
}

// Start runs retention cleanup in the background.
func (s *JournalService) Start(ctx context.Context) {
	go s.runCleanup(ctx)
}

// runCleanup periodically removes old journal entries.
func (s *JournalService) runCleanup(ctx context.Context) {
	retention := s.cfg.Journal.Retention.Duration()
	interval := s.cfg.Journal.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old journal entries")
			} else if deleted > 0 {
				log.Debug().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old journal entries")
			}
		}
	}
}

// Close releases the database.
func (s *JournalService) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
