package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayctl/internal/app"
	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/ui"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "relayctl",
		Short:        "Terminal control applet for wl-gammarelay-rs",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	configPath := opts.configPath
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	// Load configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	overrides := func(c *config.Config) { opts.apply(c, cmd.Flags()) }
	overrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Setup logging; the terminal belongs to the UI
	logOut, closeLog, err := openLogOutput(cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	setupLogging(logOut, cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	log.Info().Str("config", configPath).Str("version", version).Msg("Starting relayctl")

	// Create application
	application, err := app.New(cfg, app.Options{
		ConfigPath: configPath,
		Overrides:  overrides,
	})
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}

	bridge := ui.NewBridge()
	application.Controller().OnSnapshot(bridge.Publish)

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	// The UI closes when the application stops (signal, fade-out, fatal error)
	uiCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-application.Done():
			cancel()
		case <-uiCtx.Done():
		}
	}()

	uiErr := ui.Run(uiCtx, application.Controller(), bridge, ui.Options{
		HideCaret:    cfg.UI.HideCaret,
		HideLabels:   cfg.UI.HideLabels,
		HideValue:    cfg.UI.HideValue,
		OuterPadding: cfg.UI.OuterPadding,
		Width:        cfg.UI.Width,
		Height:       cfg.UI.Height,
	})
	if uiErr != nil {
		log.Error().Err(uiErr).Msg("UI error")
	}

	if cause := application.Cause(); cause != nil {
		log.Info().Err(cause).Msg("Session ended")
	}

	// Graceful shutdown, flushing pending writes
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	return uiErr
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// defaultConfigPath returns the per-user configuration file if it exists.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "relayctl", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// openLogOutput opens the log file for appending. Without a file logs are
// discarded.
func openLogOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func setupLogging(out io.Writer, level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
