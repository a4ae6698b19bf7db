package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/controller"
)

// reloadSettle collapses the burst of events an editor produces on save.
const reloadSettle = 100 * time.Millisecond

// Sender queues controller events, waiting for room instead of dropping them.
type Sender interface {
	Send(ctx context.Context, ev controller.Event) bool
}

// ReloadService watches the configuration file and applies property defaults,
// visibility and the fade flag without a restart. Other settings need one.
type ReloadService struct {
	path      string
	overrides func(*config.Config)
	target    Sender
}

// NewReloadService creates a reloader for path. overrides is re-applied to
// every reloaded configuration so command-line flags keep precedence.
func NewReloadService(path string, overrides func(*config.Config), target Sender) *ReloadService {
	return &ReloadService{path: path, overrides: overrides, target: target}
}

// Start watches the file in the background. Nothing happens without a path.
func (s *ReloadService) Start(ctx context.Context) {
	if s.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Config reload unavailable")
		return
	}
	// Watch the directory: editors replace the file on save.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Config reload unavailable")
		watcher.Close()
		return
	}

	go s.run(ctx, watcher)
}

func (s *ReloadService) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	name := filepath.Clean(s.path)
	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settle = time.After(reloadSettle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		case <-settle:
			settle = nil
			s.Reload(ctx)
		}
	}
}

// Reload reads the file and sends the reloadable settings to the controller,
// waiting while its inbox is full. A file that fails to parse is ignored and
// the running settings are kept.
func (s *ReloadService) Reload(ctx context.Context) bool {
	cfg, err := config.Load(s.path)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Ignoring invalid configuration")
		return false
	}
	if s.overrides != nil {
		s.overrides(cfg)
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Ignoring invalid configuration")
		return false
	}

	log.Info().Str("path", s.path).Msg("Configuration reloaded")
	ok := s.target.Send(ctx, controller.ConfigChanged{
		Defaults:    cfg.Defaults(),
		FadeEnabled: cfg.Fade.IsEnabled(),
	})
	if !ok {
		log.Warn().Str("path", s.path).Msg("Reloaded configuration not applied, controller stopped")
	}
	return ok
}
