package store

import (
	"context"
	"testing"
	"time"

	"github.com/recap/devmon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// runStateStoreContract exercises the compare-and-set contract shared by every backend.
func runStateStoreContract(t *testing.T, s StateStore) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Get(ctx, "court-1")
	require.NoError(t, err)
	assert.Nil(t, got, "missing device must read as nil")

	first := types.DeviceStatusState{
		DeviceKey:        "court-1",
		LastSeenTS:       testNow.Add(-time.Minute),
		LastIsOffline:    false,
		LastAlertedState: types.AlertedNone,
		UpdatedAt:        testNow,
	}
	require.NoError(t, s.Upsert(ctx, first, nil))

	// A second creator lost the race.
	assert.ErrorIs(t, s.Upsert(ctx, first, nil), ErrConflict)

	got, err = s.Get(ctx, "court-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.LastIsOffline)
	assert.True(t, got.LastSeenTS.Equal(first.LastSeenTS))
	assert.True(t, got.UpdatedAt.Equal(first.UpdatedAt))
	assert.Nil(t, got.LastAlertedAt)
	assert.Equal(t, types.AlertedNone, got.LastAlertedState)

	alertedAt := testNow.Add(5 * time.Minute)
	offline := types.DeviceStatusState{
		DeviceKey:        "court-1",
		LastSeenTS:       testNow.Add(-time.Minute),
		LastIsOffline:    true,
		LastAlertedAt:    &alertedAt,
		LastAlertedState: types.AlertedOffline,
		UpdatedAt:        alertedAt,
	}
	require.NoError(t, s.Upsert(ctx, offline, got))

	// A pass that still believes the device is online must not overwrite.
	stale := *got
	assert.ErrorIs(t, s.Upsert(ctx, offline, &stale), ErrConflict)

	got, err = s.Get(ctx, "court-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LastIsOffline)
	require.NotNil(t, got.LastAlertedAt)
	assert.True(t, got.LastAlertedAt.Equal(alertedAt))
	assert.Equal(t, types.AlertedOffline, got.LastAlertedState)

	// Same classification refreshes timestamps.
	refreshed := offline
	refreshed.UpdatedAt = alertedAt.Add(5 * time.Minute)
	require.NoError(t, s.Upsert(ctx, refreshed, got))
	got, err = s.Get(ctx, "court-1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(refreshed.UpdatedAt))

	// Updating a device that was never created conflicts.
	ghost := first
	ghost.DeviceKey = "court-ghost"
	assert.ErrorIs(t, s.Upsert(ctx, ghost, &first), ErrConflict)
}

func TestMemory_StateStoreContract(t *testing.T) {
	runStateStoreContract(t, NewMemory())
}

func TestMemory_KeepsLatestHeartbeat(t *testing.T) {
	m := NewMemory()
	m.RecordHeartbeat(types.DeviceHeartbeat{DeviceKey: "b", Timestamp: testNow})
	m.RecordHeartbeat(types.DeviceHeartbeat{DeviceKey: "a", Timestamp: testNow})
	m.RecordHeartbeat(types.DeviceHeartbeat{DeviceKey: "a", Timestamp: testNow.Add(-time.Hour), Notes: "old"})

	hbs, err := m.LatestHeartbeats(context.Background())
	require.NoError(t, err)
	require.Len(t, hbs, 2)
	assert.Equal(t, "a", hbs[0].DeviceKey)
	assert.Empty(t, hbs[0].Notes)
	assert.Equal(t, "b", hbs[1].DeviceKey)
}
