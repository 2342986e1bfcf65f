package worker

import (
	"context"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
)

// Publisher delivers one outbox message to the event bus.
type Publisher interface {
	Publish(ctx context.Context, m model.Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, m model.Message) error

func (f PublisherFunc) Publish(ctx context.Context, m model.Message) error { //nolint:gocritic // hugeParam: mirrors Publisher
	return f(ctx, m)
}

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher returns a publisher that only logs.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	if l == nil {
		l = logger.Get()
	}
	return &LogPublisher{logger: l.Named("event-log")}
}

func (p *LogPublisher) Publish(ctx context.Context, m model.Message) error { //nolint:gocritic // hugeParam: mirrors Publisher
	p.logger.Info(ctx, "event published",
		logger.String("topic", m.Topic),
		logger.String("key", m.Key),
		logger.String("event_id", m.Event.EventID),
		logger.String("event_type", m.Event.EventType),
	)
	return nil
}
