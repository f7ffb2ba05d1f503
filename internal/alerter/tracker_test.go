package alerter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/recap/devmon/internal/store"
	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStateStore struct {
	mock.Mock
}

func (m *mockStateStore) Get(ctx context.Context, deviceKey string) (*types.DeviceStatusState, error) {
	args := m.Called(ctx, deviceKey)
	st, _ := args.Get(0).(*types.DeviceStatusState)
	return st, args.Error(1)
}

func (m *mockStateStore) Upsert(ctx context.Context, next types.DeviceStatusState, prior *types.DeviceStatusState) error {
	args := m.Called(ctx, next, prior)
	return args.Error(0)
}

func TestTracker_OnlineToOfflineAlertsOnce(t *testing.T) {
	mem := store.NewMemory()
	tracker := NewTracker(mem, time.Second, zerolog.Nop())
	ctx := context.Background()

	alert, err := tracker.Track(ctx, status("court-1", false), now)
	require.NoError(t, err)
	assert.Nil(t, alert, "first observation must not alert")

	alert, err = tracker.Track(ctx, status("court-1", true), now.Add(5*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, types.AlertBecameOffline, alert.Kind)
	assert.True(t, mem.States()["court-1"].LastIsOffline)

	later := now.Add(10 * time.Minute)
	alert, err = tracker.Track(ctx, status("court-1", true), later)
	require.NoError(t, err)
	assert.Nil(t, alert, "unchanged classification must not alert")
	assert.Equal(t, later, mem.States()["court-1"].UpdatedAt)
}

func TestTracker_UnseenOfflineOnlyCreatesState(t *testing.T) {
	mem := store.NewMemory()
	tracker := NewTracker(mem, time.Second, zerolog.Nop())

	alert, err := tracker.Track(context.Background(), status("court-2", true), now)
	require.NoError(t, err)
	assert.Nil(t, alert)

	st, ok := mem.States()["court-2"]
	require.True(t, ok)
	assert.True(t, st.LastIsOffline)
	assert.Equal(t, types.AlertedNone, st.LastAlertedState)
}

func TestTracker_OfflineToOnline(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Upsert(context.Background(), *prior("court-3", true), nil))
	tracker := NewTracker(mem, time.Second, zerolog.Nop())

	alert, err := tracker.Track(context.Background(), status("court-3", false), now)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, types.AlertBecameOnline, alert.Kind)
	assert.Equal(t, types.AlertedOnline, mem.States()["court-3"].LastAlertedState)
}

func TestTracker_ReadFailure(t *testing.T) {
	ms := new(mockStateStore)
	ms.On("Get", mock.Anything, "court-4").Return(nil, errors.New("connection reset"))

	alert, err := NewTracker(ms, time.Second, zerolog.Nop()).Track(context.Background(), status("court-4", true), now)

	assert.Nil(t, alert)
	assert.ErrorContains(t, err, "connection reset")
	ms.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestTracker_WriteFailureSuppressesAlert(t *testing.T) {
	ms := new(mockStateStore)
	ms.On("Get", mock.Anything, "court-5").Return(prior("court-5", false), nil)
	ms.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	alert, err := NewTracker(ms, time.Second, zerolog.Nop()).Track(context.Background(), status("court-5", true), now)

	assert.Nil(t, alert)
	assert.ErrorContains(t, err, "disk full")
	ms.AssertExpectations(t)
}

func TestTracker_ConflictDropsDecision(t *testing.T) {
	ms := new(mockStateStore)
	ms.On("Get", mock.Anything, "court-6").Return(prior("court-6", false), nil)
	ms.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(store.ErrConflict)

	alert, err := NewTracker(ms, time.Second, zerolog.Nop()).Track(context.Background(), status("court-6", true), now)

	assert.NoError(t, err)
	assert.Nil(t, alert)
}

func TestTracker_WritesAgainstPriorRead(t *testing.T) {
	p := prior("court-7", false)
	ms := new(mockStateStore)
	ms.On("Get", mock.Anything, "court-7").Return(p, nil)
	ms.On("Upsert", mock.Anything, mock.MatchedBy(func(next types.DeviceStatusState) bool {
		return next.DeviceKey == "court-7" && next.LastIsOffline && next.UpdatedAt.Equal(now)
	}), p).Return(nil)

	alert, err := NewTracker(ms, time.Second, zerolog.Nop()).Track(context.Background(), status("court-7", true), now)

	require.NoError(t, err)
	require.NotNil(t, alert)
	ms.AssertExpectations(t)
}

// Two trackers sharing a store stand in for overlapping passes in separate
// processes: only the compare-and-set write keeps the alert single.
func TestTracker_ConcurrentPassesAlertAtMostOnce(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Upsert(context.Background(), *prior("court-8", false), nil))

	trackers := []*Tracker{
		NewTracker(mem, time.Second, zerolog.Nop()),
		NewTracker(mem, time.Second, zerolog.Nop()),
	}

	var alerts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(tr *Tracker) {
			defer wg.Done()
			alert, err := tr.Track(context.Background(), status("court-8", true), now)
			assert.NoError(t, err)
			if alert != nil {
				alerts.Add(1)
			}
		}(trackers[i%2])
	}
	wg.Wait()

	assert.Equal(t, int32(1), alerts.Load())
	assert.True(t, mem.States()["court-8"].LastIsOffline)
}
