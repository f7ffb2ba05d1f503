package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recap/devmon/internal/api"
	"github.com/recap/devmon/internal/app"
	"github.com/recap/devmon/internal/healthsvc"
	"github.com/recap/devmon/internal/logbuffer"
	"github.com/recap/devmon/internal/version"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger endpoint, status API and gRPC health",
		RunE: func(cmd *cobra.Command, args []string) error {
			logBuffer := logbuffer.New(1000)
			logger, err := ctx.newLogger(os.Stdout, logBuffer)
			if err != nil {
				return err
			}

			cfg, err := ctx.loadConfig()
			if err != nil {
				logger.Error().Err(err).Str("config_path", *ctx.configFlag).Msg("Failed to load configuration")
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Monitor.Interval = interval
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().Msg("Starting devmon")

			a, err := app.Build(runCtx, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to initialize")
				return err
			}
			defer a.Close()

			triggerKey := cfg.TriggerKey()
			if triggerKey == "" {
				logger.Warn().Str("env", cfg.API.TriggerKeyEnv).Msg("Trigger key not set, check endpoint will reject all requests")
			}

			server := api.NewServer(a.Runner, triggerKey, logger)
			server.SetLogBuffer(logBuffer)
			server.SetVersion(version.Version, version.Commit, version.BuildDate)

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				return server.ListenAndServe(gctx, cfg.API.Listen)
			})

			if cfg.GRPC.Listen != "" {
				health := healthsvc.New(logger)
				a.Runner.OnPass(health.Update)
				g.Go(func() error {
					return health.ListenAndServe(gctx, cfg.GRPC.Listen)
				})
			}

			if cfg.Monitor.Interval > 0 {
				g.Go(func() error {
					a.Runner.Run(gctx, cfg.Monitor.Interval)
					return nil
				})
			}

			err = g.Wait()
			logger.Info().Msg("Shutting down")
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Run a pass on this interval in addition to the trigger endpoint (e.g. 5m)")
	return cmd
}
