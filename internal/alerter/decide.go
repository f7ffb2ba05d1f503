package alerter

import (
	"time"

	"github.com/recap/devmon/internal/types"
)

const (
	StateUnseen  = "unseen"
	StateOnline  = "online"
	StateOffline = "offline"
)

// Decision is the outcome of comparing a fresh status against persisted state
type Decision struct {
	Previous string
	Current  string
	Next     types.DeviceStatusState
	Alert    *types.Alert
}

// Decide runs the per-device state machine. The first observation of a device
// never alerts; afterwards only a change of classification does.
func Decide(prior *types.DeviceStatusState, status types.EvaluatedDeviceStatus, now time.Time) Decision {
	d := Decision{
		Previous: StateUnseen,
		Current:  status.State(),
		Next: types.DeviceStatusState{
			DeviceKey:        status.DeviceKey,
			LastSeenTS:       status.LastSeen,
			LastIsOffline:    status.IsOffline,
			LastAlertedState: types.AlertedNone,
			UpdatedAt:        now,
		},
	}
	if prior == nil {
		return d
	}

	d.Previous = stateName(prior.LastIsOffline)
	d.Next.LastAlertedAt = prior.LastAlertedAt
	if prior.LastAlertedState != "" {
		d.Next.LastAlertedState = prior.LastAlertedState
	}

	if prior.LastIsOffline == status.IsOffline {
		return d
	}

	kind := types.AlertBecameOnline
	alerted := types.AlertedOnline
	if status.IsOffline {
		kind = types.AlertBecameOffline
		alerted = types.AlertedOffline
	}

	at := now
	d.Next.LastAlertedAt = &at
	d.Next.LastAlertedState = alerted
	d.Alert = &types.Alert{
		Kind:       kind,
		DeviceKey:  status.DeviceKey,
		OccurredAt: now,
		AgeSeconds: status.AgeSeconds,
		Previous:   d.Previous,
		Current:    d.Current,
		Issues:     status.Issues,
	}
	return d
}

func stateName(offline bool) string {
	if offline {
		return StateOffline
	}
	return StateOnline
}
