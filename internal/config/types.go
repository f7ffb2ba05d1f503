package config

import "time"

// Config represents the complete devmon configuration
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Alerts  AlertConfig   `yaml:"alerts"`
}

// MonitorConfig controls evaluation passes
type MonitorConfig struct {
	Thresholds    Thresholds    `yaml:"thresholds"`
	Concurrency   int           `yaml:"concurrency"`
	Interval      time.Duration `yaml:"interval,omitempty"` // 0 leaves scheduling to an external trigger
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
	LockPath      string        `yaml:"lock_path,omitempty"`
}

// Thresholds used to classify a heartbeat
type Thresholds struct {
	OfflineAfter      time.Duration `yaml:"offline_after"`
	SegmentStuckAfter time.Duration `yaml:"segment_stuck_after"`
	HotCPUCelsius     float64       `yaml:"hot_cpu_celsius"`
	LowDiskGB         float64       `yaml:"low_disk_gb"`
}

// StorageConfig selects the heartbeat source and state store backend
type StorageConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite", "dynamodb" or "memory"
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb,omitempty"`
}

// SQLiteConfig locates the SQLite database
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DynamoDBConfig names the DynamoDB tables
type DynamoDBConfig struct {
	Region         string `yaml:"region,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	HeartbeatTable string `yaml:"heartbeat_table"`
	StateTable     string `yaml:"state_table"`
}

// APIConfig configures the HTTP trigger endpoint
type APIConfig struct {
	Listen        string `yaml:"listen"`
	TriggerKeyEnv string `yaml:"trigger_key_env"`
}

// GRPCConfig configures the gRPC health endpoint. An empty listen address disables it.
type GRPCConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// AlertConfig defines alert routing
type AlertConfig struct {
	Channels   map[string]ChannelConfig `yaml:"channels"`
	AlertRules map[string]AlertRule     `yaml:"alert_rules"`
}

// ChannelConfig defines a notification channel
type ChannelConfig struct {
	Type string `yaml:"type"` // "resend", "apprise", "mqtt" or "log"

	// resend
	APIKeyEnv string   `yaml:"api_key_env,omitempty"`
	From      string   `yaml:"from,omitempty"`
	To        []string `yaml:"to,omitempty"`
	Endpoint  string   `yaml:"endpoint,omitempty"`

	// apprise
	URLEnv string `yaml:"url_env,omitempty"`

	// mqtt
	Broker   string `yaml:"broker,omitempty"`
	Topic    string `yaml:"topic,omitempty"`
	QOS      int    `yaml:"qos,omitempty"`
	ClientID string `yaml:"client_id,omitempty"`
}

// AlertRule defines routing for an alert kind
type AlertRule struct {
	Channels []string `yaml:"channels"`
}
