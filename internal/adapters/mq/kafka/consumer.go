package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/distrischool/grade-service/internal/domain/dedupe"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	fetchBackoff = time.Second

	outcomeHandled   = "handled"
	outcomeFailed    = "failed"
	outcomeMalformed = "malformed"
	outcomeDuplicate = "duplicate"
)

// Handler reacts to an inbound platform event.
type Handler interface {
	HandleEvent(ctx context.Context, e model.Event) error
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads platform events with a consumer group and commits each
// message after it has been handled, duplicates and malformed ones included.
type Consumer struct {
	reader  MessageReader
	handler Handler
	deduper dedupe.Deduper
	logger  logger.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithReader replaces the kafka-go reader.
func WithReader(r MessageReader) ConsumerOption {
	return func(c *Consumer) {
		if r != nil {
			c.reader = r
		}
	}
}

// WithDeduper sets the redelivery filter.
func WithDeduper(d dedupe.Deduper) ConsumerOption {
	return func(c *Consumer) {
		if d != nil {
			c.deduper = d
		}
	}
}

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(l logger.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConsumer creates a group consumer over topics.
func NewConsumer(brokers []string, groupID string, topics []string, h Handler, opts ...ConsumerOption) (*Consumer, error) {
	if h == nil {
		return nil, errors.New("kafka consumer: nil handler")
	}
	c := &Consumer{handler: h, logger: logger.Get()}
	for _, opt := range opts {
		opt(c)
	}
	if c.deduper == nil {
		c.deduper = dedupe.NewInMemoryDeduper()
	}
	if c.reader == nil {
		if len(brokers) == 0 || len(topics) == 0 {
			return nil, errors.New("kafka consumer: brokers and topics are required")
		}
		c.reader = kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			GroupTopics: topics,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
		})
	}
	c.logger = c.logger.Named("kafka-consumer")
	return c, nil
}

// Run fetches until ctx is done or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn(ctx, "fetch failed", logger.Error(err))
			metrics.RecordErrorByComponent("consumer", "fetch_failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}

		c.HandleMessage(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "commit failed",
				logger.String("topic", msg.Topic),
				logger.Int64("offset", msg.Offset),
				logger.Error(err),
			)
			metrics.RecordErrorByComponent("consumer", "commit_failed")
		}
	}
}

// HandleMessage decodes, dedupes and dispatches one message. It never fails:
// every outcome is logged and counted and the caller commits regardless.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafkago.Message) string { //nolint:gocritic // hugeParam: kafka-go passes messages by value
	var e model.Event
	if err := json.Unmarshal(msg.Value, &e); err != nil || e.EventType == "" {
		if err == nil {
			err = fmt.Errorf("missing eventType")
		}
		c.logger.Warn(ctx, "malformed event",
			logger.String("topic", msg.Topic),
			logger.Int64("offset", msg.Offset),
			logger.Error(err),
		)
		metrics.RecordEvent("inbound", "unknown", outcomeMalformed)
		return outcomeMalformed
	}

	if e.EventID != "" && c.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		metrics.RecordEvent("inbound", e.EventType, outcomeDuplicate)
		return outcomeDuplicate
	}

	if err := c.handler.HandleEvent(ctx, e); err != nil {
		c.logger.Error(ctx, "event handler failed",
			logger.String("event_id", e.EventID),
			logger.String("event_type", e.EventType),
			logger.Error(err),
		)
		if e.EventID != "" {
			c.deduper.Unrecord(ctx, e.EventID)
		}
		metrics.RecordEvent("inbound", e.EventType, outcomeFailed)
		return outcomeFailed
	}
	metrics.RecordEvent("inbound", e.EventType, outcomeHandled)
	return outcomeHandled
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
