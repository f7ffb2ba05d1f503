package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
)

// Message is a rendered notification. Recipients is filled per channel when
// the message is routed; sinks without addressees ignore it.
type Message struct {
	Subject    string
	Body       string
	Recipients []string
	Alert      *types.Alert // nil for test messages
}

// Sink delivers messages over one transport
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier routes alerts to the channels configured for their kind
type Notifier struct {
	channels   map[string]Sink
	recipients map[string][]string
	rules      map[string]config.AlertRule
	logger     zerolog.Logger
}

// NewNotifier builds the configured channels. With no channels configured,
// alerts are only logged.
func NewNotifier(cfg config.AlertConfig, logger zerolog.Logger) (*Notifier, error) {
	logger = logger.With().Str("component", "notifier").Logger()

	channels := make(map[string]Sink, len(cfg.Channels))
	recipients := make(map[string][]string, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		sink, err := newSink(name, ch, logger)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		channels[name] = sink
		if len(ch.To) > 0 {
			recipients[name] = ch.To
		}
	}

	rules := cfg.AlertRules
	if len(channels) == 0 {
		channels["log"] = NewLogSink("log", logger)
		rules = map[string]config.AlertRule{"default": {Channels: []string{"log"}}}
	}

	n := New(channels, rules, logger)
	n.recipients = recipients
	return n, nil
}

// New creates a notifier from already constructed sinks
func New(channels map[string]Sink, rules map[string]config.AlertRule, logger zerolog.Logger) *Notifier {
	return &Notifier{
		channels:   channels,
		recipients: map[string][]string{},
		rules:      rules,
		logger:     logger,
	}
}

func newSink(name string, ch config.ChannelConfig, logger zerolog.Logger) (Sink, error) {
	switch ch.Type {
	case "resend":
		return NewResendSink(name, ch), nil
	case "apprise":
		return NewAppriseSink(name, ch), nil
	case "mqtt":
		return NewMQTTSink(name, ch, logger), nil
	case "log":
		return NewLogSink(name, logger), nil
	default:
		return nil, fmt.Errorf("unsupported channel type %q", ch.Type)
	}
}

// SendAlert renders the alert and delivers it to every routed channel. A
// failing channel does not stop delivery to the others; all failures are
// returned joined.
func (n *Notifier) SendAlert(ctx context.Context, alert types.Alert) error {
	msg := Render(alert)
	names := n.channelsForKind(alert.Kind)
	if len(names) == 0 {
		n.logger.Warn().
			Str("device", alert.DeviceKey).
			Str("kind", string(alert.Kind)).
			Msg("No channels routed for alert")
		return nil
	}
	return n.deliver(ctx, msg, names, alert.DeviceKey)
}

// SendTest sends a test message to every configured channel. When to is
// given it replaces each channel's configured recipients.
func (n *Notifier) SendTest(ctx context.Context, to ...string) error {
	names := make([]string, 0, len(n.channels))
	for name := range n.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := Message{
		Subject:    "devmon: notification test",
		Body:       fmt.Sprintf("This is a test notification from devmon.\nSent at: %s", time.Now().UTC().Format(time.RFC3339)),
		Recipients: to,
	}
	return n.deliver(ctx, msg, names, "")
}

func (n *Notifier) deliver(ctx context.Context, msg Message, names []string, device string) error {
	var errs []error
	for _, name := range names {
		sink, ok := n.channels[name]
		if !ok {
			n.logger.Warn().Str("channel", name).Msg("Channel not configured, skipping")
			continue
		}
		routed := msg
		if len(routed.Recipients) == 0 {
			routed.Recipients = n.recipients[name]
		}
		if err := sink.Send(ctx, routed); err != nil {
			n.logger.Error().
				Err(err).
				Str("channel", name).
				Str("device", device).
				Msg("Failed to send notification")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		n.logger.Info().
			Str("channel", name).
			Str("device", device).
			Str("subject", msg.Subject).
			Msg("Notification sent")
	}
	return errors.Join(errs...)
}

// channelsForKind returns the channels for an alert kind, falling back to the default rule
func (n *Notifier) channelsForKind(kind types.AlertKind) []string {
	if rule, ok := n.rules[string(kind)]; ok {
		return rule.Channels
	}
	if rule, ok := n.rules["default"]; ok {
		return rule.Channels
	}
	return nil
}

// Close releases transport connections held by sinks
func (n *Notifier) Close() {
	for _, sink := range n.channels {
		if c, ok := sink.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// Render formats an alert into a notification message
func Render(alert types.Alert) Message {
	var subject string
	switch alert.Kind {
	case types.AlertBecameOffline:
		subject = fmt.Sprintf("devmon: %s went offline", alert.DeviceKey)
	case types.AlertBecameOnline:
		subject = fmt.Sprintf("devmon: %s is back online", alert.DeviceKey)
	default:
		subject = fmt.Sprintf("devmon: %s %s", alert.DeviceKey, alert.Kind)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Device: %s\n", alert.DeviceKey)
	fmt.Fprintf(&b, "Transition: %s -> %s\n", alert.Previous, alert.Current)
	fmt.Fprintf(&b, "Last heartbeat: %s ago\n", time.Duration(alert.AgeSeconds)*time.Second)
	fmt.Fprintf(&b, "Detected at: %s", alert.OccurredAt.UTC().Format(time.RFC3339))
	if len(alert.Issues) > 0 {
		b.WriteString("\nIssues:")
		for _, issue := range alert.Issues {
			b.WriteString("\n- ")
			b.WriteString(issue)
		}
	}

	a := alert
	return Message{
		Subject: subject,
		Body:    b.String(),
		Alert:   &a,
	}
}

// LogSink only logs messages; used when no transport is configured
type LogSink struct {
	name   string
	logger zerolog.Logger
}

// NewLogSink creates a log-only sink
func NewLogSink(name string, logger zerolog.Logger) *LogSink {
	return &LogSink{name: name, logger: logger}
}

func (s *LogSink) Name() string { return s.name }

func (s *LogSink) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("channel", s.name).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("Would send notification (no transport configured)")
	return nil
}
