package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/observability/metrics"
)

const sinkMQTT = "mqtt"

// MQTTConfig holds MQTT connection configuration.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// mqttClient is the part of the paho client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes monitor events to an MQTT broker for bedside
// displays and companion devices.
type MQTTPublisher struct {
	client  mqttClient
	prefix  string
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("topicPrefix", cfg.TopicPrefix).
		Msg("MQTT publisher initialized")

	return newMQTTPublisher(client, cfg.TopicPrefix), nil
}

func newMQTTPublisher(client mqttClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		prefix:  prefix,
		timeout: 5 * time.Second,
		metrics: metrics.DefaultMetrics,
	}
}

// Topic returns the topic an event type is published on.
func (p *MQTTPublisher) Topic(eventType string) string {
	switch eventType {
	case models.EventAmplitude:
		return p.prefix + "/amplitude"
	case models.EventSnore:
		return p.prefix + "/snore"
	default:
		return p.prefix + "/session"
	}
}

// Publish implements Sink. Amplitude updates are fire-and-forget at QoS 0;
// snore and session events use QoS 1 and wait for the broker.
func (p *MQTTPublisher) Publish(ctx context.Context, e models.Event) error {
	start := time.Now()
	eventType := e.EventName()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := p.Topic(eventType)
	if eventType == models.EventAmplitude {
		p.client.Publish(topic, 0, false, payload)
		p.metrics.RecordEventPublish(sinkMQTT, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	token := p.client.Publish(topic, 1, false, payload)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-token.Done():
		err = token.Error()
	case <-time.After(p.timeout):
		err = fmt.Errorf("publish to %s timed out", topic)
	}
	p.metrics.RecordEventPublish(sinkMQTT, eventType, err, time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish to MQTT")
		return err
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
	log.Info().Msg("MQTT publisher disconnected")
}
