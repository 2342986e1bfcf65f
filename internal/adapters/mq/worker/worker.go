package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	defaultPublishTimeout = 5 * time.Second

	outcomePublished = "published"
	outcomeFailed    = "failed"
)

// Queue is the part of the outbox a worker consumes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Message
}

// Worker drains messages until its source closes or it is shut down.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker publishes messages read from a Queue.
type InMemoryWorker struct {
	queue     Queue
	publisher Publisher
	name      string
	logger    logger.Logger

	retries int
	backoff time.Duration
	timeout time.Duration

	// busy is flipped by the worker and read by the pool metrics loop.
	busy   func(bool)
	stop   chan struct{}
	closed sync.Once
	done   chan struct{}
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, p Publisher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		publisher: p,
		name:      "worker",
		logger:    logger.Get(),
		retries:   defaultRetries,
		backoff:   defaultBackoff,
		timeout:   defaultPublishTimeout,
		busy:      func(bool) {},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run blocks until the queue is drained and closed, ctx is done or
// Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	messages := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			w.busy(true)
			w.processMessage(ctx, m)
			w.busy(false)
		}
	}
}

// Shutdown stops the worker without draining and waits for it to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.closed.Do(func() { close(w.stop) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %s shutdown: %w", w.name, ctx.Err())
	}
}

func (w *InMemoryWorker) processMessage(ctx context.Context, m model.Message) { //nolint:gocritic // hugeParam: received by value from channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	var err error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 && !w.wait(ctx, attempt) {
			err = ctx.Err()
			break
		}
		if err = w.publish(ctx, m); err == nil {
			metrics.RecordEvent("outbound", m.Event.EventType, outcomePublished)
			return
		}
		w.logger.Warn(ctx, "publish attempt failed",
			logger.Int("attempt", attempt+1),
			logger.String("event_id", m.Event.EventID),
			logger.Error(err),
		)
	}

	metrics.RecordEvent("outbound", m.Event.EventType, outcomeFailed)
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", "publish_failed")
	w.logger.Error(ctx, "event dropped after retries",
		logger.String("topic", m.Topic),
		logger.String("event_id", m.Event.EventID),
		logger.String("event_type", m.Event.EventType),
		logger.Error(err),
	)
}

func (w *InMemoryWorker) publish(ctx context.Context, m model.Message) error { //nolint:gocritic // hugeParam: received by value from channel
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.publisher.Publish(ctx, m)
}

// wait sleeps for the attempt's backoff; false means ctx ended first.
func (w *InMemoryWorker) wait(ctx context.Context, attempt int) bool {
	t := time.NewTimer(w.backoff * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
