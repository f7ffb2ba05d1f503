package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/recap/devmon/internal/app"
	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/monitor"
	"github.com/recap/devmon/internal/types"
	"github.com/recap/devmon/internal/version"
)

const configPathEnv = "DEVMON_CONFIG"

// passRunner is the part of monitor.Runner the handler needs
type passRunner interface {
	RunPass(ctx context.Context, opts monitor.PassOptions) (*types.Summary, error)
}

type handler struct {
	runner passRunner
	logger zerolog.Logger
}

// scheduleDetail is the optional detail of the scheduled event
type scheduleDetail struct {
	Device string `json:"device"`
}

// Handle runs one pass per scheduled invocation. An overlapping invocation is
// skipped rather than failed so the scheduler does not retry it.
func (h *handler) Handle(ctx context.Context, event events.CloudWatchEvent) (*types.Summary, error) {
	var detail scheduleDetail
	if len(event.Detail) > 0 {
		if err := json.Unmarshal(event.Detail, &detail); err != nil {
			h.logger.Warn().Err(err).Str("event_id", event.ID).Msg("Ignoring malformed event detail")
		}
	}

	summary, err := h.runner.RunPass(ctx, monitor.PassOptions{DeviceKey: detail.Device})
	if errors.Is(err, monitor.ErrPassInProgress) {
		h.logger.Warn().Str("event_id", event.ID).Msg("Pass already running, skipping invocation")
		return nil, nil
	}
	return summary, err
}

func loadConfig() (*config.Config, error) {
	path := os.Getenv(configPathEnv)
	if path == "" {
		return config.Parse(nil)
	}
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s points to a missing file: %w", configPathEnv, err)
	}
	return cfg, err
}

func main() {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Logger()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	logger.Info().Msg("Lambda cold start complete")

	h := &handler{runner: a.Runner, logger: logger}
	lambda.Start(h.Handle)
}
