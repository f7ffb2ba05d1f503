package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/recap/devmon/internal/config"
)

const defaultResendEndpoint = "https://api.resend.com/emails"

// ResendSink sends e-mail through the Resend HTTP API
type ResendSink struct {
	name      string
	endpoint  string
	apiKeyEnv string
	from      string
	to        []string
	client    *http.Client
}

// NewResendSink creates a Resend e-mail sink
func NewResendSink(name string, ch config.ChannelConfig) *ResendSink {
	endpoint := ch.Endpoint
	if endpoint == "" {
		endpoint = defaultResendEndpoint
	}
	return &ResendSink{
		name:      name,
		endpoint:  endpoint,
		apiKeyEnv: ch.APIKeyEnv,
		from:      ch.From,
		to:        ch.To,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ResendSink) Name() string { return s.name }

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// Send posts one e-mail to the message recipients, or the channel's when none are given
func (s *ResendSink) Send(ctx context.Context, msg Message) error {
	apiKey := os.Getenv(s.apiKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("%s is not set", s.apiKeyEnv)
	}

	to := msg.Recipients
	if len(to) == 0 {
		to = s.to
	}

	payload, err := json.Marshal(resendEmail{
		From:    s.from,
		To:      to,
		Subject: msg.Subject,
		Text:    msg.Body,
		HTML:    "<pre>" + html.EscapeString(msg.Body) + "</pre>",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("resend error: %d %s", resp.StatusCode, string(body))
	}
	return nil
}
