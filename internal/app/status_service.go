package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/controller"
	"github.com/dokzlo13/relayctl/internal/ledger"
	"github.com/dokzlo13/relayctl/internal/property"
)

// StateSource provides controller snapshots.
type StateSource interface {
	Snapshot(ctx context.Context) (controller.Snapshot, error)
}

// JournalSource provides recent journal entries.
type JournalSource interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// StatusService provides HTTP health and state endpoints.
type StatusService struct {
	cfg     *config.Config
	state   StateSource
	journal JournalSource
	server  *http.Server
}

// NewStatusService creates a new StatusService. journal may be nil.
func NewStatusService(cfg *config.Config, state StateSource, journal JournalSource) *StatusService {
	return &StatusService{
		cfg:     cfg,
		state:   state,
		journal: journal,
	}
}

// Start begins the status server if enabled.
func (s *StatusService) Start(ctx context.Context) {
	if !s.cfg.Status.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *StatusService) run(ctx context.Context) {
	addr := s.cfg.Status.Address()

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting status server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Status server error")
	}
}

// Handler returns the status endpoints.
func (s *StatusService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Ready only while the daemon is reachable
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.snapshot(r.Context())
		if err != nil || !snap.Connected {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disconnected"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.snapshot(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, newStateView(snap))
	})

	mux.HandleFunc("/journal", func(w http.ResponseWriter, r *http.Request) {
		if s.journal == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
			return
		}
		limit := s.cfg.Journal.Limit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			limit = n
		}
		entries, err := s.journal.Recent(limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if entries == nil {
			entries = []*ledger.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	return mux
}

func (s *StatusService) snapshot(ctx context.Context) (controller.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.state.Snapshot(ctx)
}

type propertyView struct {
	Value    float64 `json:"value"`
	Text     string  `json:"text"`
	Default  float64 `json:"default"`
	Enabled  bool    `json:"enabled"`
	Pending  bool    `json:"pending"`
	SoftFail bool    `json:"soft_fail"`
}

type stateView struct {
	Version    uint64                  `json:"version"`
	Connected  bool                    `json:"connected"`
	Mode       string                  `json:"mode"`
	Active     string                  `json:"active,omitempty"`
	Fade       string                  `json:"fade"`
	Opacity    float64                 `json:"opacity"`
	Properties map[string]propertyView `json:"properties"`
}

func newStateView(snap controller.Snapshot) stateView {
	view := stateView{
		Version:    snap.Version,
		Connected:  snap.Connected,
		Mode:       snap.Mode.String(),
		Fade:       snap.Fade.String(),
		Opacity:    snap.Opacity,
		Properties: make(map[string]propertyView, property.Count),
	}
	if snap.Mode != controller.Idle {
		view.Active = snap.Active.String()
	}
	for _, id := range property.All {
		rec := snap.Records[id]
		view.Properties[id.String()] = propertyView{
			Value:    rec.Value,
			Text:     property.Format(id, rec.Value),
			Default:  rec.Default,
			Enabled:  rec.Enabled,
			Pending:  rec.Pending,
			SoftFail: rec.SoftFail,
		}
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write status response")
	}
}
