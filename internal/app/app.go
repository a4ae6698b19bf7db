package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/controller"
)

// Reasons a session ends, reported by Cause.
var (
	ErrHidden  = errors.New("window faded out")
	ErrStopped = errors.New("stopped")
)

// App owns the services of one applet session: it wires them, starts them
// and tears them down in order.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelCauseFunc
}

// New builds every service without starting any of them.
func New(cfg *config.Config, opts Options) (*App, error) {
	services, err := NewServices(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Controller returns the synchronization controller. Observers must be
// registered before Start.
func (a *App) Controller() *controller.Controller {
	return a.services.Sync.Controller
}

// Start launches the services under a child of ctx. The session ends when ctx
// is cancelled, the window fades out or a service fails for good.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancelCause(ctx)

	a.services.Sync.Controller.OnHidden(func() {
		log.Info().Msg("Window hidden, ending session")
		a.cancel(ErrHidden)
	})

	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Fatal error, ending session")
		a.cancel(err)
	}
	if err := a.services.Start(a.ctx, onFatalError); err != nil {
		a.cancel(err)
		return err
	}

	log.Info().Str("service", a.cfg.Remote.Service).Msg("relayctl started")
	return nil
}

// Stop ends the session and closes the services. Pending writes are flushed
// to the daemon before the link is closed.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")
	if a.cancel != nil {
		a.cancel(ErrStopped)
	}
	return a.services.Stop()
}

// Done is closed when the session ends. It is nil before Start.
func (a *App) Done() <-chan struct{} {
	if a.ctx == nil {
		return nil
	}
	return a.ctx.Done()
}

// Cause reports why the session ended: ErrHidden, ErrStopped, a fatal service
// error or the cancellation cause of the parent context. It is nil while the
// session runs.
func (a *App) Cause() error {
	if a.ctx == nil {
		return nil
	}
	return context.Cause(a.ctx)
}

// SignalContext returns a context cancelled by SIGINT, SIGTERM or SIGHUP.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancelCause(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigs
		signal.Stop(sigs)
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel(errors.New(sig.String()))
	}()

	return ctx
}
