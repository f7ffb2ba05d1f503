package alerter

import (
	"testing"
	"time"

	"github.com/recap/devmon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func status(key string, offline bool) types.EvaluatedDeviceStatus {
	s := types.EvaluatedDeviceStatus{
		DeviceKey:  key,
		IsOffline:  offline,
		AgeSeconds: 30,
		LastSeen:   now.Add(-30 * time.Second),
		Issues:     []string{},
	}
	if offline {
		s.AgeSeconds = 660
		s.LastSeen = now.Add(-11 * time.Minute)
		s.Issues = []string{"no heartbeat for 11 minutes"}
	}
	return s
}

func prior(key string, offline bool) *types.DeviceStatusState {
	return &types.DeviceStatusState{
		DeviceKey:        key,
		LastSeenTS:       now.Add(-time.Hour),
		LastIsOffline:    offline,
		LastAlertedState: types.AlertedNone,
		UpdatedAt:        now.Add(-5 * time.Minute),
	}
}

func TestDecide_UnseenNeverAlerts(t *testing.T) {
	for _, offline := range []bool{false, true} {
		d := Decide(nil, status("court-1", offline), now)

		assert.Nil(t, d.Alert)
		assert.Equal(t, StateUnseen, d.Previous)
		assert.Equal(t, offline, d.Next.LastIsOffline)
		assert.Equal(t, types.AlertedNone, d.Next.LastAlertedState)
		assert.Nil(t, d.Next.LastAlertedAt)
		assert.Equal(t, now, d.Next.UpdatedAt)
	}
}

func TestDecide_OnlineToOffline(t *testing.T) {
	d := Decide(prior("court-1", false), status("court-1", true), now)

	require.NotNil(t, d.Alert)
	assert.Equal(t, types.AlertBecameOffline, d.Alert.Kind)
	assert.Equal(t, "court-1", d.Alert.DeviceKey)
	assert.Equal(t, now, d.Alert.OccurredAt)
	assert.Equal(t, int64(660), d.Alert.AgeSeconds)
	assert.Equal(t, StateOnline, d.Alert.Previous)
	assert.Equal(t, StateOffline, d.Alert.Current)

	assert.True(t, d.Next.LastIsOffline)
	require.NotNil(t, d.Next.LastAlertedAt)
	assert.Equal(t, now, *d.Next.LastAlertedAt)
	assert.Equal(t, types.AlertedOffline, d.Next.LastAlertedState)
}

func TestDecide_OfflineToOnline(t *testing.T) {
	d := Decide(prior("court-1", true), status("court-1", false), now)

	require.NotNil(t, d.Alert)
	assert.Equal(t, types.AlertBecameOnline, d.Alert.Kind)
	assert.False(t, d.Next.LastIsOffline)
	assert.Equal(t, types.AlertedOnline, d.Next.LastAlertedState)
}

func TestDecide_UnchangedRefreshesTimestampsOnly(t *testing.T) {
	alertedAt := now.Add(-2 * time.Hour)
	p := prior("court-1", true)
	p.LastAlertedAt = &alertedAt
	p.LastAlertedState = types.AlertedOffline

	s := status("court-1", true)
	d := Decide(p, s, now)

	assert.Nil(t, d.Alert)
	assert.Equal(t, s.LastSeen, d.Next.LastSeenTS)
	assert.Equal(t, now, d.Next.UpdatedAt)
	assert.Equal(t, &alertedAt, d.Next.LastAlertedAt)
	assert.Equal(t, types.AlertedOffline, d.Next.LastAlertedState)
}

func TestDecide_EmptyAlertedStateNormalized(t *testing.T) {
	p := prior("court-1", false)
	p.LastAlertedState = ""

	d := Decide(p, status("court-1", false), now)

	assert.Equal(t, types.AlertedNone, d.Next.LastAlertedState)
}
