// Package kafka connects the outbox and the inbound handlers to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	kafkago "github.com/segmentio/kafka-go"
)

const defaultBatchTimeout = 50 * time.Millisecond

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes outbox messages to their topic, keyed for partitioning.
type Publisher struct {
	writer MessageWriter
	logger logger.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*publisherConfig)

type publisherConfig struct {
	batchTimeout time.Duration
	writer       MessageWriter
	logger       logger.Logger
}

// WithBatchTimeout bounds how long the writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) PublisherOption {
	return func(c *publisherConfig) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithWriter replaces the kafka-go writer.
func WithWriter(w MessageWriter) PublisherOption {
	return func(c *publisherConfig) {
		if w != nil {
			c.writer = w
		}
	}
}

// WithPublisherLogger sets the publisher logger.
func WithPublisherLogger(l logger.Logger) PublisherOption {
	return func(c *publisherConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewPublisher creates a publisher over brokers. Messages for the same key
// land on the same partition.
func NewPublisher(brokers []string, opts ...PublisherOption) (*Publisher, error) {
	cfg := publisherConfig{batchTimeout: defaultBatchTimeout, logger: logger.Get()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.writer == nil {
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka publisher: no brokers configured")
		}
		cfg.writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.Hash{},
			BatchTimeout:           cfg.batchTimeout,
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
	return &Publisher{writer: cfg.writer, logger: cfg.logger.Named("kafka-publisher")}, nil
}

// Publish encodes the event envelope and writes it synchronously.
func (p *Publisher) Publish(ctx context.Context, m model.Message) error { //nolint:gocritic // hugeParam: matches worker.Publisher
	body, err := json.Marshal(m.Event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", m.Event.EventID, err)
	}
	msg := kafkago.Message{
		Topic: m.Topic,
		Key:   []byte(m.Key),
		Value: body,
		Headers: []kafkago.Header{
			{Key: "eventType", Value: []byte(m.Event.EventType)},
			{Key: "source", Value: []byte(m.Event.Source)},
		},
		Time: m.Event.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", m.Event.EventID, m.Topic, err)
	}
	p.logger.Debug(ctx, "event written",
		logger.String("topic", m.Topic),
		logger.String("event_id", m.Event.EventID),
	)
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
