package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
)

// mqttClient is the subset of the paho client used by MQTTSink
type mqttClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes alerts as JSON on an MQTT topic
type MQTTSink struct {
	name   string
	topic  string
	qos    byte
	client mqttClient
	logger zerolog.Logger
	mu     sync.Mutex
}

type mqttPayload struct {
	Subject string       `json:"subject"`
	Body    string       `json:"body"`
	Alert   *types.Alert `json:"alert,omitempty"`
}

// NewMQTTSink creates an MQTT sink. The broker connection is opened on first send.
func NewMQTTSink(name string, ch config.ChannelConfig, logger zerolog.Logger) *MQTTSink {
	clientID := ch.ClientID
	if clientID == "" {
		clientID = "devmon"
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(ch.Broker)
	opts.SetClientID(clientID + "-" + uuid.New().String())
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	return newMQTTSink(name, ch.Topic, byte(ch.QOS), mqtt.NewClient(opts), logger)
}

func newMQTTSink(name, topic string, qos byte, client mqttClient, logger zerolog.Logger) *MQTTSink {
	return &MQTTSink{
		name:   name,
		topic:  topic,
		qos:    qos,
		client: client,
		logger: logger.With().Str("channel", name).Logger(),
	}
}

func (s *MQTTSink) Name() string { return s.name }

// Send publishes the message and waits for the broker acknowledgement or ctx
func (s *MQTTSink) Send(ctx context.Context, msg Message) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(mqttPayload{Subject: msg.Subject, Body: msg.Body, Alert: msg.Alert})
	if err != nil {
		return fmt.Errorf("failed to serialize alert: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, false, payload)
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}
	return nil
}

func (s *MQTTSink) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client.IsConnected() {
		return nil
	}
	if err := waitToken(ctx, s.client.Connect()); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	s.logger.Info().Msg("Connected to MQTT broker")
	return nil
}

// Close disconnects from the broker
func (s *MQTTSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return errors.Join(errors.New("timed out waiting for broker"), ctx.Err())
	}
}
