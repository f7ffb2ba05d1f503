package types

import "time"

// AlertKind identifies the transition an alert reports.
type AlertKind string

const (
	AlertBecameOffline AlertKind = "became_offline"
	AlertBecameOnline  AlertKind = "became_online"
)

// Alert represents a single online/offline transition of a device.
type Alert struct {
	Kind       AlertKind `json:"kind"`
	DeviceKey  string    `json:"device_key"`
	OccurredAt time.Time `json:"occurred_at"`
	AgeSeconds int64     `json:"age_seconds"`
	Previous   string    `json:"previous"`
	Current    string    `json:"current"`
	Issues     []string  `json:"issues,omitempty"`
}
