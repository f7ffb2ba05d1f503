package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/types"
)

// AppriseSink posts notifications to an Apprise API notify endpoint
type AppriseSink struct {
	name   string
	urlEnv string
	client *http.Client
}

// NewAppriseSink creates an Apprise sink. The endpoint URL is read from the
// channel's url_env at send time, e.g. http://apprise:8000/notify/ops.
func NewAppriseSink(name string, ch config.ChannelConfig) *AppriseSink {
	return &AppriseSink{
		name:   name,
		urlEnv: ch.URLEnv,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *AppriseSink) Name() string { return s.name }

// Send posts the message to Apprise
func (s *AppriseSink) Send(ctx context.Context, msg Message) error {
	url := os.Getenv(s.urlEnv)
	if url == "" {
		return fmt.Errorf("%s is not set", s.urlEnv)
	}

	payload := map[string]string{
		"title":  msg.Subject,
		"body":   msg.Body,
		"type":   appriseType(msg.Alert),
		"format": "text",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("apprise API error: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}

// appriseType maps an alert to an Apprise notification type
func appriseType(alert *types.Alert) string {
	if alert == nil {
		return "info"
	}
	if alert.Kind == types.AlertBecameOnline {
		return "success"
	}
	return "failure"
}
