package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"readiness/internal/config"
	"readiness/internal/orchestrator"
	"readiness/internal/score"
)

// MQTTClient is the part of mqtt.Client the publisher uses
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each update retained on "<prefix>/<type>" so devices that
// connect later get the current score immediately.
type MQTT struct {
	client MQTTClient
	prefix string
	qos    byte
	log    *zap.Logger
}

// NewMQTT creates a publisher over a connected client
func NewMQTT(client MQTTClient, prefix string, log *zap.Logger) *MQTT {
	if log == nil {
		log = zap.NewNop()
	}
	return &MQTT{client: client, prefix: prefix, qos: 1, log: log.Named("mqtt")}
}

// DialMQTT connects to the configured broker
func DialMQTT(cfg config.PublishConfig, log *zap.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.MQTTBroker, token.Error())
	}
	return NewMQTT(client, cfg.MQTTTopicPrefix, log), nil
}

// Topic returns the topic for t
func (m *MQTT) Topic(t score.Type) string {
	return m.prefix + "/" + string(t)
}

// Name implements orchestrator.Subscriber
func (m *MQTT) Name() string { return "mqtt" }

// OnScore implements orchestrator.Subscriber
func (m *MQTT) OnScore(ctx context.Context, u orchestrator.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding update: %w", err)
	}

	topic := m.Topic(u.Type)
	token := m.client.Publish(topic, m.qos, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	m.log.Debug("published update", zap.String("topic", topic), zap.String("day", u.Day))
	return nil
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
