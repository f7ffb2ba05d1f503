// Package app wires storage, notification and the pass runner from a loaded
// configuration. Every entrypoint builds its components through Build.
package app

import (
	"context"
	"fmt"

	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/monitor"
	"github.com/recap/devmon/internal/notifier"
	"github.com/recap/devmon/internal/store"
	"github.com/rs/zerolog"
)

// App holds the wired components of one devmon process
type App struct {
	Config   *config.Config
	Backend  store.Backend
	Notifier *notifier.Notifier
	Runner   *monitor.Runner
	logger   zerolog.Logger
}

// Build opens the configured backend and constructs the notifier and runner
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	n, err := notifier.NewNotifier(cfg.Alerts, logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("build notifier: %w", err)
	}

	runner, err := monitor.NewRunner(cfg.Monitor, backend, backend, n, logger)
	if err != nil {
		n.Close()
		backend.Close()
		return nil, err
	}

	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Dur("offline_after", cfg.Monitor.Thresholds.OfflineAfter).
		Int("concurrency", cfg.Monitor.Concurrency).
		Int("channels", len(cfg.Alerts.Channels)).
		Msg("Components initialized")

	return &App{
		Config:   cfg,
		Backend:  backend,
		Notifier: n,
		Runner:   runner,
		logger:   logger,
	}, nil
}

// Close releases the notifier transports and the storage backend
func (a *App) Close() {
	a.Notifier.Close()
	if err := a.Backend.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close storage")
	}
}
