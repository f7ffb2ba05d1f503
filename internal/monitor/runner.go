// Package monitor runs evaluation passes: fetch the latest heartbeats,
// classify every device, record state transitions and deliver alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/recap/devmon/internal/alerter"
	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/evaluator"
	"github.com/recap/devmon/internal/store"
	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrPassInProgress is returned when a pass is requested while another one holds the pass lock.
var ErrPassInProgress = errors.New("evaluation pass already in progress")

// AlertSender delivers a single alert
type AlertSender interface {
	SendAlert(ctx context.Context, alert types.Alert) error
}

// PassOptions narrows a pass
type PassOptions struct {
	// DeviceKey restricts evaluation and reporting to one device when set.
	DeviceKey string
}

// Runner executes evaluation passes. Passes never overlap: an in-process
// mutex guards the runner and an optional lock file guards the host.
type Runner struct {
	source    store.HeartbeatSource
	evaluator *evaluator.Evaluator
	tracker   *alerter.Tracker
	sender    AlertSender
	cfg       config.MonitorConfig
	logger    zerolog.Logger

	passMu   sync.Mutex
	fileLock *flock.Flock
	now      func() time.Time

	mu      sync.RWMutex
	last    *types.Summary
	onPass  []func(types.Summary)
	lastErr error
	lastRun time.Time
}

// NewRunner wires a runner from its collaborators
func NewRunner(cfg config.MonitorConfig, source store.HeartbeatSource, states store.StateStore, sender AlertSender, logger zerolog.Logger) (*Runner, error) {
	r := &Runner{
		source:    source,
		evaluator: evaluator.NewEvaluator(cfg.Thresholds, cfg.Concurrency, logger),
		tracker:   alerter.NewTracker(states, cfg.StoreTimeout, logger),
		sender:    sender,
		cfg:       cfg,
		logger:    logger.With().Str("component", "monitor").Logger(),
		now:       time.Now,
	}

	if cfg.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LockPath), 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
		r.fileLock = flock.New(cfg.LockPath)
	}

	return r, nil
}

// OnPass registers a callback invoked with every completed summary
func (r *Runner) OnPass(fn func(types.Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPass = append(r.onPass, fn)
}

// Last returns the most recent completed summary, or nil before the first pass
func (r *Runner) Last() *types.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// LastRun reports when the most recent pass ran and the error it returned
func (r *Runner) LastRun() (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun, r.lastErr
}

// RunPass executes one evaluation pass. A heartbeat fetch failure aborts the
// pass before any state is touched. Per-device state and delivery failures are
// reported in the summary and do not stop the remaining devices.
func (r *Runner) RunPass(ctx context.Context, opts PassOptions) (*types.Summary, error) {
	if !r.passMu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer r.passMu.Unlock()

	if r.fileLock != nil {
		locked, err := r.fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire pass lock %s: %w", r.cfg.LockPath, err)
		}
		if !locked {
			return nil, ErrPassInProgress
		}
		defer func() {
			if err := r.fileLock.Unlock(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to release pass lock")
			}
		}()
	}

	summary, err := r.runPass(ctx, opts)

	r.mu.Lock()
	r.lastErr = err
	r.lastRun = r.now()
	var callbacks []func(types.Summary)
	if err == nil {
		r.last = summary
		callbacks = append(callbacks, r.onPass...)
	}
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(*summary)
	}
	return summary, err
}

func (r *Runner) runPass(ctx context.Context, opts PassOptions) (*types.Summary, error) {
	passID := uuid.NewString()
	logger := r.logger.With().Str("pass_id", passID).Logger()
	now := r.now().UTC()

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	heartbeats, err := r.source.LatestHeartbeats(fetchCtx)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch heartbeats, aborting pass")
		return nil, fmt.Errorf("fetch heartbeats: %w", err)
	}

	if opts.DeviceKey != "" {
		heartbeats = filterDevice(heartbeats, opts.DeviceKey)
	}

	statuses, err := r.evaluator.EvaluateAll(ctx, heartbeats, now)
	if err != nil {
		return nil, err
	}

	alerts := make([]*types.Alert, len(statuses))
	var (
		failMu   sync.Mutex
		failures []types.DeviceFailure
	)
	fail := func(key, stage string, err error) {
		failMu.Lock()
		defer failMu.Unlock()
		failures = append(failures, types.DeviceFailure{DeviceKey: key, Stage: stage, Error: err.Error()})
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency())
	for i, status := range statuses {
		g.Go(func() error {
			alert, err := r.tracker.Track(ctx, status, now)
			if err != nil {
				logger.Error().Err(err).Str("device", status.DeviceKey).Msg("Failed to record device state")
				fail(status.DeviceKey, "state", err)
				return nil
			}
			if alert == nil {
				return nil
			}
			alerts[i] = alert

			// State has flipped; cancelling the pass must not drop the alert.
			notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.NotifyTimeout)
			defer cancel()
			if err := r.sender.SendAlert(notifyCtx, *alert); err != nil {
				// State has already flipped; this transition will not be alerted again.
				logger.Error().
					Err(err).
					Str("device", status.DeviceKey).
					Str("kind", string(alert.Kind)).
					Msg("Alert delivery failed")
				fail(status.DeviceKey, "notify", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &types.Summary{
		PassID:    passID,
		CheckedAt: now,
		Filter:    opts.DeviceKey,
		Counts:    evaluator.Summarize(statuses),
		Devices:   statuses,
		Alerts:    []types.Alert{},
		Failures:  failures,
	}
	for _, a := range alerts {
		if a != nil {
			summary.Alerts = append(summary.Alerts, *a)
		}
	}
	sort.Slice(summary.Failures, func(i, j int) bool {
		if summary.Failures[i].DeviceKey != summary.Failures[j].DeviceKey {
			return summary.Failures[i].DeviceKey < summary.Failures[j].DeviceKey
		}
		return summary.Failures[i].Stage < summary.Failures[j].Stage
	})

	logger.Info().
		Int("total", summary.Total).
		Int("online", summary.Online).
		Int("offline", summary.Offline).
		Int("issues", summary.Issues).
		Int("alerts", len(summary.Alerts)).
		Int("failures", len(summary.Failures)).
		Str("device_filter", opts.DeviceKey).
		Msg("Pass complete")

	return summary, nil
}

// Run executes a pass immediately and then every interval until ctx is done
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("Starting scheduled passes")
	for {
		r.scheduledPass(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Scheduled passes stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) scheduledPass(ctx context.Context) {
	_, err := r.RunPass(ctx, PassOptions{})
	switch {
	case err == nil:
	case errors.Is(err, ErrPassInProgress):
		r.logger.Warn().Msg("Skipping scheduled pass, previous pass still running")
	case ctx.Err() != nil:
	default:
		r.logger.Error().Err(err).Msg("Scheduled pass failed")
	}
}

func (r *Runner) concurrency() int {
	if r.cfg.Concurrency > 0 {
		return r.cfg.Concurrency
	}
	return 1
}

func filterDevice(heartbeats []types.DeviceHeartbeat, key string) []types.DeviceHeartbeat {
	var out []types.DeviceHeartbeat
	for _, hb := range heartbeats {
		if hb.DeviceKey == key {
			out = append(out, hb)
		}
	}
	return out
}
