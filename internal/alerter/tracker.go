package alerter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/recap/devmon/internal/store"
	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
)

// Tracker compares evaluated statuses against persisted state and decides
// which transitions to alert on
type Tracker struct {
	store   store.StateStore
	timeout time.Duration
	logger  zerolog.Logger
	locks   cmap.ConcurrentMap[string, *sync.Mutex]
}

// NewTracker creates a new transition tracker
func NewTracker(stateStore store.StateStore, timeout time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:   stateStore,
		timeout: timeout,
		logger:  logger.With().Str("component", "tracker").Logger(),
		locks:   cmap.New[*sync.Mutex](),
	}
}

// Track reads the prior state of the device, decides, and writes the new
// state. It returns the alert to deliver, or nil when nothing changed or the
// state could not be recorded.
func (t *Tracker) Track(ctx context.Context, status types.EvaluatedDeviceStatus, now time.Time) (*types.Alert, error) {
	mu := t.lockFor(status.DeviceKey)
	mu.Lock()
	defer mu.Unlock()

	prior, err := t.get(ctx, status.DeviceKey)
	if err != nil {
		return nil, fmt.Errorf("reading state for %s: %w", status.DeviceKey, err)
	}

	decision := Decide(prior, status, now)

	if err := t.upsert(ctx, decision.Next, prior); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another pass recorded this device first; its decision stands.
			t.logger.Warn().
				Str("device", status.DeviceKey).
				Str("previous", decision.Previous).
				Str("current", decision.Current).
				Msg("Device state changed concurrently, dropping decision")
			return nil, nil
		}
		return nil, fmt.Errorf("writing state for %s: %w", status.DeviceKey, err)
	}

	if decision.Alert == nil {
		t.logger.Debug().
			Str("device", status.DeviceKey).
			Str("previous", decision.Previous).
			Str("current", decision.Current).
			Msg("No transition")
		return nil, nil
	}

	t.logger.Info().
		Str("device", status.DeviceKey).
		Str("kind", string(decision.Alert.Kind)).
		Int64("age_seconds", status.AgeSeconds).
		Msg("Transition detected")

	return decision.Alert, nil
}

func (t *Tracker) lockFor(deviceKey string) *sync.Mutex {
	return t.locks.Upsert(deviceKey, nil, func(exist bool, inMap, _ *sync.Mutex) *sync.Mutex {
		if exist {
			return inMap
		}
		return &sync.Mutex{}
	})
}

func (t *Tracker) get(ctx context.Context, deviceKey string) (*types.DeviceStatusState, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()
	return t.store.Get(ctx, deviceKey)
}

func (t *Tracker) upsert(ctx context.Context, next types.DeviceStatusState, prior *types.DeviceStatusState) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()
	return t.store.Upsert(ctx, next, prior)
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}
