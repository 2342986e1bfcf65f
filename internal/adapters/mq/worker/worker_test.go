package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/mq/queue"
	"github.com/distrischool/grade-service/internal/adapters/mq/worker"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// recordingPublisher remembers every message and can fail the first n calls.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []model.Message
	failures int
	calls    int
}

func (p *recordingPublisher) Publish(_ context.Context, m model.Message) error { //nolint:gocritic // hugeParam: mirrors Publisher
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, m)
	return nil
}

func (p *recordingPublisher) snapshot() ([]model.Message, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Message(nil), p.messages...), p.calls
}

func message(id string) model.Message {
	return model.Message{
		Topic: "distrischool.grade.created",
		Key:   "7",
		Event: model.Event{EventID: id, EventType: model.EventGradeCreated},
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		pub := &recordingPublisher{}

		convey.Convey("It publishes every message and exits when the queue is drained", func() {
			w := worker.NewInMemoryWorker(q, pub, worker.WithLogger(logger.Nop()))
			q.Enqueue(ctx, message("e1"))
			q.Enqueue(ctx, message("e2"))
			_ = q.Close()

			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("worker did not exit")
			}
			got, _ := pub.snapshot()
			convey.So(got, convey.ShouldHaveLength, 2)
			convey.So(got[0].Event.EventID, convey.ShouldEqual, "e1")
			convey.So(got[1].Event.EventID, convey.ShouldEqual, "e2")
		})

		convey.Convey("It retries a failing publish", func() {
			pub.failures = 2
			w := worker.NewInMemoryWorker(q, pub,
				worker.WithLogger(logger.Nop()),
				worker.WithRetries(2),
				worker.WithBackoff(time.Millisecond),
			)
			q.Enqueue(ctx, message("e1"))
			_ = q.Close()
			w.Run(ctx)

			got, calls := pub.snapshot()
			convey.So(calls, convey.ShouldEqual, 3)
			convey.So(got, convey.ShouldHaveLength, 1)
		})

		convey.Convey("It drops a message once retries are exhausted and keeps going", func() {
			pub.failures = 2
			w := worker.NewInMemoryWorker(q, pub,
				worker.WithLogger(logger.Nop()),
				worker.WithRetries(1),
				worker.WithBackoff(time.Millisecond),
			)
			q.Enqueue(ctx, message("lost"))
			q.Enqueue(ctx, message("kept"))
			_ = q.Close()
			w.Run(ctx)

			got, calls := pub.snapshot()
			convey.So(calls, convey.ShouldEqual, 3)
			convey.So(got, convey.ShouldHaveLength, 1)
			convey.So(got[0].Event.EventID, convey.ShouldEqual, "kept")
		})

		convey.Convey("Shutdown stops an idle worker", func() {
			w := worker.NewInMemoryWorker(q, pub, worker.WithLogger(logger.Nop()))
			go w.Run(ctx)

			sctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		pub := &recordingPublisher{}
		pool := worker.NewPool(4, q, pub, worker.WithLogger(logger.Nop()))
		pool.Start(ctx)

		convey.Convey("Shutdown drains every queued message", func() {
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(ctx, message(fmt.Sprintf("e%d", i))), convey.ShouldBeTrue)
			}
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			convey.So(pool.Shutdown(sctx), convey.ShouldBeNil)
			got, _ := pub.snapshot()
			convey.So(got, convey.ShouldHaveLength, 50)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})

		convey.Convey("It reports its size", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 4)
			convey.So(pool.Stop(), convey.ShouldBeNil)
		})
	})

	convey.Convey("A pool never has fewer than one worker", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), worker.NewLogPublisher(logger.Nop()))
		convey.So(pool.Size(), convey.ShouldEqual, 1)
	})
}

func TestLogPublisher(t *testing.T) {
	convey.Convey("The log publisher never fails", t, func() {
		p := worker.NewLogPublisher(logger.Nop())
		convey.So(p.Publish(context.Background(), message("e1")), convey.ShouldBeNil)

		var f worker.PublisherFunc = func(context.Context, model.Message) error { return nil }
		convey.So(f.Publish(context.Background(), message("e2")), convey.ShouldBeNil)
	})
}
