package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOfflineAfter      = 10 * time.Minute
	DefaultSegmentStuckAfter = 12 * time.Second
	DefaultHotCPUCelsius     = 80.0
	DefaultLowDiskGB         = 2.0
	DefaultConcurrency       = 8
	DefaultTriggerKeyEnv     = "ALERT_CRON_KEY"
	DefaultResendKeyEnv      = "RESEND_API_KEY"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyDefaults(cfg)
	applyLegacyChannel(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultThresholds returns the classification thresholds used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		OfflineAfter:      DefaultOfflineAfter,
		SegmentStuckAfter: DefaultSegmentStuckAfter,
		HotCPUCelsius:     DefaultHotCPUCelsius,
		LowDiskGB:         DefaultLowDiskGB,
	}
}

// UnmarshalYAML starts from the defaults so that only keys present in the
// file override them and an explicit 0 is kept.
func (t *Thresholds) UnmarshalYAML(value *yaml.Node) error {
	type plain Thresholds
	p := plain(DefaultThresholds())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Thresholds(p)
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Monitor.Thresholds == (Thresholds{}) {
		cfg.Monitor.Thresholds = DefaultThresholds()
	}

	m := &cfg.Monitor
	if m.Concurrency <= 0 {
		m.Concurrency = DefaultConcurrency
	}
	if m.FetchTimeout == 0 {
		m.FetchTimeout = 30 * time.Second
	}
	if m.StoreTimeout == 0 {
		m.StoreTimeout = 5 * time.Second
	}
	if m.NotifyTimeout == 0 {
		m.NotifyTimeout = 10 * time.Second
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "/data/devmon.db"
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = ":8088"
	}
	if cfg.API.TriggerKeyEnv == "" {
		cfg.API.TriggerKeyEnv = DefaultTriggerKeyEnv
	}

	for name, ch := range cfg.Alerts.Channels {
		if ch.Type == "resend" && ch.APIKeyEnv == "" {
			ch.APIKeyEnv = DefaultResendKeyEnv
			cfg.Alerts.Channels[name] = ch
		}
	}
}

// applyLegacyChannel keeps single-recipient e-mail alerting working when no
// channels are configured but the Resend environment variables are present.
func applyLegacyChannel(cfg *Config) {
	if len(cfg.Alerts.Channels) > 0 {
		return
	}
	to := strings.TrimSpace(os.Getenv("ALERT_TO_EMAIL"))
	if os.Getenv(DefaultResendKeyEnv) == "" || to == "" {
		return
	}
	cfg.Alerts.Channels = map[string]ChannelConfig{
		"email": {
			Type:      "resend",
			APIKeyEnv: DefaultResendKeyEnv,
			From:      os.Getenv("ALERT_FROM_EMAIL"),
			To:        splitList(to),
		},
	}
	if cfg.Alerts.AlertRules == nil {
		cfg.Alerts.AlertRules = map[string]AlertRule{}
	}
	if _, ok := cfg.Alerts.AlertRules["default"]; !ok {
		cfg.Alerts.AlertRules["default"] = AlertRule{Channels: []string{"email"}}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// TriggerKey resolves the shared secret for the trigger endpoint
func (c *Config) TriggerKey() string {
	return os.Getenv(c.API.TriggerKeyEnv)
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	t := cfg.Monitor.Thresholds
	if t.OfflineAfter < time.Second {
		return fmt.Errorf("monitor.thresholds.offline_after must be at least 1s")
	}
	if t.SegmentStuckAfter < 0 {
		return fmt.Errorf("monitor.thresholds.segment_stuck_after must not be negative")
	}
	if t.LowDiskGB < 0 {
		return fmt.Errorf("monitor.thresholds.low_disk_gb must not be negative")
	}

	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "dynamodb":
		if cfg.Storage.DynamoDB.HeartbeatTable == "" || cfg.Storage.DynamoDB.StateTable == "" {
			return fmt.Errorf("storage.dynamodb: heartbeat_table and state_table are required")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be 'sqlite', 'dynamodb' or 'memory'")
	}

	for name, ch := range cfg.Alerts.Channels {
		switch ch.Type {
		case "resend":
			if len(ch.To) == 0 {
				return fmt.Errorf("channel %s: at least one recipient in 'to' is required", name)
			}
			if ch.From == "" {
				return fmt.Errorf("channel %s: from is required", name)
			}
		case "apprise":
			if ch.URLEnv == "" {
				return fmt.Errorf("channel %s: url_env is required", name)
			}
			// The env var itself may be set later at runtime.
		case "mqtt":
			if ch.Broker == "" || ch.Topic == "" {
				return fmt.Errorf("channel %s: broker and topic are required", name)
			}
			if ch.QOS < 0 || ch.QOS > 2 {
				return fmt.Errorf("channel %s: qos must be 0, 1 or 2", name)
			}
		case "log":
		default:
			return fmt.Errorf("channel %s: type must be 'resend', 'apprise', 'mqtt' or 'log'", name)
		}
	}

	for ruleName, rule := range cfg.Alerts.AlertRules {
		switch ruleName {
		case "default", "became_offline", "became_online":
		default:
			return fmt.Errorf("alert rule %s: must be 'default', 'became_offline' or 'became_online'", ruleName)
		}
		for _, chName := range rule.Channels {
			if _, ok := cfg.Alerts.Channels[chName]; !ok {
				return fmt.Errorf("alert rule %s: references unknown channel %s", ruleName, chName)
			}
		}
	}

	return nil
}
