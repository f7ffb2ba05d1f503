package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "")
	cfg, err := Parse([]byte("storage:\n  driver: memory\n"))
	require.NoError(t, err)

	th := cfg.Monitor.Thresholds
	assert.Equal(t, 10*time.Minute, th.OfflineAfter)
	assert.Equal(t, 12*time.Second, th.SegmentStuckAfter)
	assert.Equal(t, 80.0, th.HotCPUCelsius)
	assert.Equal(t, 2.0, th.LowDiskGB)
	assert.Equal(t, DefaultConcurrency, cfg.Monitor.Concurrency)
	assert.Equal(t, ":8088", cfg.API.Listen)
	assert.Equal(t, "ALERT_CRON_KEY", cfg.API.TriggerKeyEnv)
	assert.Empty(t, cfg.Alerts.Channels)
}

func TestLoad_FullFile(t *testing.T) {
	doc := `
monitor:
  thresholds:
    offline_after: 5m
    segment_stuck_after: 20s
    hot_cpu_celsius: 75
    low_disk_gb: 1.5
  concurrency: 4
  interval: 5m
storage:
  driver: sqlite
  sqlite:
    path: /tmp/devmon.db
api:
  listen: ":9000"
  trigger_key_env: CRON_SECRET
alerts:
  channels:
    ops:
      type: resend
      from: alerts@example.com
      to: [ops@example.com]
    bus:
      type: mqtt
      broker: tcp://localhost:1883
      topic: devmon/alerts
      qos: 1
  alert_rules:
    default:
      channels: [ops]
    became_offline:
      channels: [ops, bus]
`
	path := filepath.Join(t.TempDir(), "devmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Monitor.Thresholds.OfflineAfter)
	assert.Equal(t, 20*time.Second, cfg.Monitor.Thresholds.SegmentStuckAfter)
	assert.Equal(t, 75.0, cfg.Monitor.Thresholds.HotCPUCelsius)
	assert.Equal(t, 1.5, cfg.Monitor.Thresholds.LowDiskGB)
	assert.Equal(t, 4, cfg.Monitor.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, "RESEND_API_KEY", cfg.Alerts.Channels["ops"].APIKeyEnv)
	assert.Equal(t, []string{"ops", "bus"}, cfg.Alerts.AlertRules["became_offline"].Channels)

	t.Setenv("CRON_SECRET", "s3cret")
	assert.Equal(t, "s3cret", cfg.TriggerKey())
}

func TestParse_LegacyEmailChannel(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("ALERT_FROM_EMAIL", "Recap Alerts <alerts@example.com>")
	t.Setenv("ALERT_TO_EMAIL", "a@example.com, b@example.com")

	cfg, err := Parse([]byte("storage:\n  driver: memory\n"))
	require.NoError(t, err)

	ch, ok := cfg.Alerts.Channels["email"]
	require.True(t, ok)
	assert.Equal(t, "resend", ch.Type)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, ch.To)
	assert.Equal(t, []string{"email"}, cfg.Alerts.AlertRules["default"].Channels)
}

func TestParse_ValidationErrors(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "")
	cases := map[string]string{
		"unknown driver":  "storage:\n  driver: postgres\n",
		"dynamo tables":   "storage:\n  driver: dynamodb\n",
		"unknown channel": "storage:\n  driver: memory\nalerts:\n  alert_rules:\n    default:\n      channels: [nope]\n",
		"bad rule name":   "storage:\n  driver: memory\nalerts:\n  channels:\n    l:\n      type: log\n  alert_rules:\n    critical:\n      channels: [l]\n",
		"bad channel":     "storage:\n  driver: memory\nalerts:\n  channels:\n    x:\n      type: pager\n",
		"resend no to":    "storage:\n  driver: memory\nalerts:\n  channels:\n    x:\n      type: resend\n      from: a@example.com\n",
		"mqtt bad qos":    "storage:\n  driver: memory\nalerts:\n  channels:\n    x:\n      type: mqtt\n      broker: tcp://b:1883\n      topic: t\n      qos: 3\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "devmon.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, ":8089", cfg.GRPC.Listen)
	assert.Len(t, cfg.Alerts.Channels, 3)
	assert.Equal(t, []string{"email", "ops-chat", "bus"}, cfg.Alerts.AlertRules["became_offline"].Channels)
	assert.Equal(t, 1, cfg.Alerts.Channels["bus"].QOS)
}

func TestParse_ExplicitZeroThresholdsKept(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "")
	cfg, err := Parse([]byte(`
storage:
  driver: memory
monitor:
  thresholds:
    segment_stuck_after: 0s
    low_disk_gb: 0
`))
	require.NoError(t, err)

	th := cfg.Monitor.Thresholds
	assert.Equal(t, time.Duration(0), th.SegmentStuckAfter)
	assert.Equal(t, 0.0, th.LowDiskGB)
	assert.Equal(t, DefaultOfflineAfter, th.OfflineAfter)
	assert.Equal(t, DefaultHotCPUCelsius, th.HotCPUCelsius)
}

func TestParse_EmptyThresholdsSectionUsesDefaults(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "")
	cfg, err := Parse([]byte("storage:\n  driver: memory\nmonitor:\n  thresholds: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), cfg.Monitor.Thresholds)
}
