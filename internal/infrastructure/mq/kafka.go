package mq

import (
	"context"
	"fmt"

	"ignitia/internal/config"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Message is one event relayed from the outbox.
type Message struct {
	Topic     string
	Key       string
	EventType string
	Value     string
}

// Publisher delivers outbox messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// NewProducerConfig is the sarama configuration for the outbox relay: every
// message is acknowledged by all in-sync replicas.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

// InitKafka creates the synchronous producer used by KafkaPublisher.
func InitKafka(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.StringEncoder(msg.Value),
	}
	if msg.EventType != "" {
		pm.Headers = []sarama.RecordHeader{{Key: []byte("event_type"), Value: []byte(msg.EventType)}}
	}

	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	zerolog.Ctx(ctx).Debug().
		Str("topic", msg.Topic).
		Str("key", msg.Key).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("message published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher writes messages to the log instead of a broker. It backs the
// outbox relay when kafka is disabled.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info().
		Str("topic", msg.Topic).
		Str("key", msg.Key).
		Str("event_type", msg.EventType).
		RawJSON("payload", []byte(msg.Value)).
		Msg("outbox event")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
