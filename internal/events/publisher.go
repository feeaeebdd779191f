package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/observability/metrics"
)

const sinkKafka = "kafka"

// Publisher publishes monitor events to Kafka. Amplitude updates go to their
// own high-volume topic; snore and session events share the snore topic.
type Publisher struct {
	writerAmplitude *kafka.Writer
	writerSnore     *kafka.Writer
	principal       string
	topicAmplitude  string
	topicSnore      string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicAmplitude string
	TopicSnore     string
	Principal      string
	Enabled        bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicAmplitude: cfg.TopicAmplitude,
			topicSnore:     cfg.TopicSnore,
			enabled:        false,
			metrics:        m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	// Amplitude telemetry is best-effort.
	writerAmplitude := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicAmplitude,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		RequiredAcks: kafka.RequireNone,
		Async:        true,
		Transport:    transport,
	}

	writerSnore := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicSnore,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicAmplitude", cfg.TopicAmplitude).
		Str("topicSnore", cfg.TopicSnore).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerAmplitude: writerAmplitude,
		writerSnore:     writerSnore,
		principal:       cfg.Principal,
		topicAmplitude:  cfg.TopicAmplitude,
		topicSnore:      cfg.TopicSnore,
		enabled:         true,
		metrics:         m,
	}
}

// Publish implements Sink. Events are keyed by session id.
func (p *Publisher) Publish(ctx context.Context, e models.Event) error {
	key, err := sessionKey(e)
	if err != nil {
		return err
	}
	if e.EventName() == models.EventAmplitude {
		return p.publish(ctx, p.writerAmplitude, p.topicAmplitude, e.EventName(), key, e)
	}
	return p.publish(ctx, p.writerSnore, p.topicSnore, e.EventName(), key, e)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	if eventType != models.EventAmplitude {
		log.Debug().
			Str("principal", p.principal).
			Str("topic", topic).
			Str("key", key).
			RawJSON("payload", payload).
			Msg("Publishing event")
	}

	if !p.enabled || writer == nil {
		p.metrics.RecordEventPublish(sinkKafka, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordEventPublish(sinkKafka, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordEventPublish(sinkKafka, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerAmplitude != nil {
		if e := p.writerAmplitude.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing amplitude writer")
			err = e
		}
	}
	if p.writerSnore != nil {
		if e := p.writerSnore.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing snore writer")
			err = e
		}
	}
	return err
}

func sessionKey(e models.Event) (string, error) {
	switch ev := e.(type) {
	case models.AmplitudeUpdate:
		return strconv.FormatInt(ev.SessionID, 10), nil
	case models.SnoreDetected:
		return strconv.FormatInt(ev.SessionID, 10), nil
	case models.SessionStatus:
		return strconv.FormatInt(ev.SessionID, 10), nil
	default:
		return "", fmt.Errorf("unsupported event type %T", e)
	}
}
