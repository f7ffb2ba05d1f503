package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Evaluator classifies device heartbeats against the configured thresholds
type Evaluator struct {
	thresholds  config.Thresholds
	concurrency int
	logger      zerolog.Logger
}

// NewEvaluator creates a new status evaluator
func NewEvaluator(thresholds config.Thresholds, concurrency int, logger zerolog.Logger) *Evaluator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Evaluator{
		thresholds:  thresholds,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate derives the status of one device at the instant now. It has no side effects.
func (e *Evaluator) Evaluate(hb types.DeviceHeartbeat, now time.Time) types.EvaluatedDeviceStatus {
	age := now.Sub(hb.Timestamp)
	if age < 0 {
		age = 0
	}
	ageSeconds := int64(age / time.Second)

	status := types.EvaluatedDeviceStatus{
		DeviceKey:  hb.DeviceKey,
		AgeSeconds: ageSeconds,
		LastSeen:   hb.Timestamp,
	}

	// A stale snapshot says nothing about the current hardware, so offline
	// devices report only the staleness.
	if ageSeconds > wholeSeconds(e.thresholds.OfflineAfter) {
		status.IsOffline = true
		status.Issues = []string{fmt.Sprintf("no heartbeat for %s", minutes(ageSeconds/60))}
		return status
	}

	status.Issues = e.collectIssues(hb)
	return status
}

// collectIssues runs the granular checks for an online device, in report order
func (e *Evaluator) collectIssues(hb types.DeviceHeartbeat) []string {
	issues := []string{}

	for _, check := range []struct {
		name string
		flag types.Flag
	}{
		{"camera", hb.CameraOK},
		{"buffer", hb.BufferOK},
		{"button", hb.ButtonOK},
	} {
		if issue, failed := flagIssue(check.name, check.flag); failed {
			issues = append(issues, issue)
		}
	}

	if hb.LastSegmentAgeSec != nil && *hb.LastSegmentAgeSec > wholeSeconds(e.thresholds.SegmentStuckAfter) {
		issues = append(issues, fmt.Sprintf("segment stuck for %ds", *hb.LastSegmentAgeSec))
	}
	if hb.CPUTempC != nil && *hb.CPUTempC >= e.thresholds.HotCPUCelsius {
		issues = append(issues, fmt.Sprintf("cpu hot (%.1f°C)", *hb.CPUTempC))
	}
	if hb.DiskFreeGB != nil && *hb.DiskFreeGB <= e.thresholds.LowDiskGB {
		issues = append(issues, fmt.Sprintf("low disk (%.1f GB free)", *hb.DiskFreeGB))
	}
	if strings.TrimSpace(hb.Notes) != "" {
		issues = append(issues, hb.Notes)
	}

	return issues
}

// EvaluateAll evaluates a batch of heartbeats in parallel and returns the
// statuses sorted by device key.
func (e *Evaluator) EvaluateAll(ctx context.Context, heartbeats []types.DeviceHeartbeat, now time.Time) ([]types.EvaluatedDeviceStatus, error) {
	results := make([]types.EvaluatedDeviceStatus, len(heartbeats))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range heartbeats {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.Evaluate(heartbeats[i], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluating heartbeats: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DeviceKey < results[j].DeviceKey
	})

	for _, s := range results {
		if len(s.Issues) == 0 {
			continue
		}
		e.logger.Debug().
			Str("device", s.DeviceKey).
			Bool("offline", s.IsOffline).
			Strs("issues", s.Issues).
			Msg("Device has issues")
	}

	return results, nil
}

// Summarize counts online and offline devices and their issues
func Summarize(statuses []types.EvaluatedDeviceStatus) types.Counts {
	counts := types.Counts{Total: len(statuses)}
	for _, s := range statuses {
		if s.IsOffline {
			counts.Offline++
		} else {
			counts.Online++
		}
		counts.Issues += len(s.Issues)
	}
	return counts
}

// flagIssue reports a failure for anything other than an explicit true
func flagIssue(name string, f types.Flag) (string, bool) {
	switch f {
	case types.FlagTrue:
		return "", false
	case types.FlagFalse:
		return name + " failed", true
	default:
		return name + " status unknown", true
	}
}

func wholeSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func minutes(n int64) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}
