package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Flag is a tri-state health flag reported by a device. The zero value is
// FlagUnknown, so a field the device never sent stays distinct from false.
type Flag int8

const (
	FlagUnknown Flag = iota
	FlagFalse
	FlagTrue
)

// FlagOf converts a reported boolean into a Flag.
func FlagOf(ok bool) Flag {
	if ok {
		return FlagTrue
	}
	return FlagFalse
}

// FlagFromPtr maps a nullable boolean to a Flag.
func FlagFromPtr(ok *bool) Flag {
	if ok == nil {
		return FlagUnknown
	}
	return FlagOf(*ok)
}

// OK reports whether the flag is explicitly true.
func (f Flag) OK() bool {
	return f == FlagTrue
}

// Ptr returns the flag as a nullable boolean.
func (f Flag) Ptr() *bool {
	switch f {
	case FlagTrue:
		v := true
		return &v
	case FlagFalse:
		v := false
		return &v
	default:
		return nil
	}
}

func (f Flag) String() string {
	switch f {
	case FlagTrue:
		return "true"
	case FlagFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Scan implements sql.Scanner. NULL scans as FlagUnknown.
func (f *Flag) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = FlagUnknown
	case bool:
		*f = FlagOf(v)
	case int64:
		*f = FlagOf(v != 0)
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into Flag", src)
	}
	return nil
}

func (f *Flag) parse(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "unknown":
		*f = FlagUnknown
	case "1", "t", "true", "ok":
		*f = FlagTrue
	case "0", "f", "false":
		*f = FlagFalse
	default:
		return fmt.Errorf("invalid flag value %q", s)
	}
	return nil
}

// MarshalJSON encodes unknown as null.
func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Ptr())
}

// UnmarshalJSON decodes null or a missing value as unknown.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlagFromPtr(v)
	return nil
}

// DeviceHeartbeat is the freshest self-reported health snapshot of one device.
// Numeric telemetry the device did not report is nil.
type DeviceHeartbeat struct {
	DeviceKey         string    `json:"device_key"`
	Timestamp         time.Time `json:"ts"`
	CameraOK          Flag      `json:"camera_ok"`
	BufferOK          Flag      `json:"buffer_ok"`
	ButtonOK          Flag      `json:"button_ok"`
	LastSegmentAgeSec *int64    `json:"last_segment_age_sec,omitempty"`
	DiskFreeGB        *float64  `json:"disk_free_gb,omitempty"`
	CPUTempC          *float64  `json:"cpu_temp_c,omitempty"`
	Notes             string    `json:"notes,omitempty"`
}
