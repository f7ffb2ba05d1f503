package types

import "time"

// AlertedState is the classification recorded with the last alert sent for a device.
type AlertedState string

const (
	AlertedNone    AlertedState = "none"
	AlertedOffline AlertedState = "offline"
	AlertedOnline  AlertedState = "online"
)

// DeviceStatusState is the persisted classification of a device, one row per key.
type DeviceStatusState struct {
	DeviceKey        string       `json:"device_key"`
	LastSeenTS       time.Time    `json:"last_seen_ts"`
	LastIsOffline    bool         `json:"last_is_offline"`
	LastAlertedAt    *time.Time   `json:"last_alerted_at,omitempty"`
	LastAlertedState AlertedState `json:"last_alerted_state"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// EvaluatedDeviceStatus is the classification derived from one heartbeat.
type EvaluatedDeviceStatus struct {
	DeviceKey  string    `json:"device_key"`
	IsOffline  bool      `json:"is_offline"`
	AgeSeconds int64     `json:"age_seconds"`
	LastSeen   time.Time `json:"last_seen"`
	Issues     []string  `json:"issues"`
}

// State returns the classification as a display string.
func (s EvaluatedDeviceStatus) State() string {
	if s.IsOffline {
		return "offline"
	}
	return "online"
}

// Counts aggregates a batch of evaluated statuses.
type Counts struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Issues  int `json:"issues"`
}

// DeviceFailure records a per-device error that did not abort the pass.
type DeviceFailure struct {
	DeviceKey string `json:"device_key"`
	Stage     string `json:"stage"` // "state" or "notify"
	Error     string `json:"error"`
}

// Summary is the result of one evaluation pass.
type Summary struct {
	PassID    string    `json:"pass_id"`
	CheckedAt time.Time `json:"checked_at"`
	Filter    string    `json:"device_filter,omitempty"`
	Counts
	Devices  []EvaluatedDeviceStatus `json:"devices"`
	Alerts   []Alert                 `json:"alerts"`
	Failures []DeviceFailure         `json:"failures,omitempty"`
}
