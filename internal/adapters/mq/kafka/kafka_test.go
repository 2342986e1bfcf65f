package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/distrischool/grade-service/internal/domain/dedupe"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/smartystreets/goconvey/convey"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafkago.Message
	committed []kafkago.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return kafkago.Message{}, io.EOF
	}
	m := r.pending[0]
	r.pending = r.pending[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingHandler struct {
	events []model.Event
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, e model.Event) error {
	h.events = append(h.events, e)
	return h.err
}

func encode(t *testing.T, e model.Event) kafkago.Message {
	t.Helper()
	body, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafkago.Message{Topic: "distrischool.student.created", Value: body}
}

func TestPublisher(t *testing.T) {
	convey.Convey("Given a publisher over a fake writer", t, func() {
		w := &fakeWriter{}
		p, err := NewPublisher(nil, WithWriter(w), WithPublisherLogger(logger.Nop()))
		convey.So(err, convey.ShouldBeNil)

		e := model.NewEvent(model.EventGradeCreated, map[string]any{"gradeId": 1}, time.Now())
		m := model.Message{Topic: "distrischool.grade.created", Key: "42", Event: e}

		convey.Convey("It writes the envelope keyed by student", func() {
			convey.So(p.Publish(context.Background(), m), convey.ShouldBeNil)
			convey.So(w.msgs, convey.ShouldHaveLength, 1)
			convey.So(w.msgs[0].Topic, convey.ShouldEqual, "distrischool.grade.created")
			convey.So(string(w.msgs[0].Key), convey.ShouldEqual, "42")

			var decoded model.Event
			convey.So(json.Unmarshal(w.msgs[0].Value, &decoded), convey.ShouldBeNil)
			convey.So(decoded.EventID, convey.ShouldEqual, e.EventID)
			convey.So(decoded.Source, convey.ShouldEqual, model.EventSource)
		})

		convey.Convey("It wraps writer failures", func() {
			w.err = errors.New("leader not available")
			err := p.Publish(context.Background(), m)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, w.err), convey.ShouldBeTrue)
		})
	})

	convey.Convey("A publisher needs brokers", t, func() {
		_, err := NewPublisher(nil)
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestConsumer(t *testing.T) {
	convey.Convey("Given a consumer over a fake reader", t, func() {
		ctx := context.Background()
		h := &recordingHandler{}
		r := &fakeReader{}
		c, err := NewConsumer(nil, "grade-service", nil, h,
			WithReader(r),
			WithDeduper(dedupe.NewInMemoryDeduper()),
			WithConsumerLogger(logger.Nop()),
		)
		convey.So(err, convey.ShouldBeNil)

		created := model.NewEvent(model.EventStudentCreated, map[string]any{"studentId": 7}, time.Now())

		convey.Convey("It dispatches a well-formed event", func() {
			convey.So(c.HandleMessage(ctx, encode(t, created)), convey.ShouldEqual, outcomeHandled)
			convey.So(h.events, convey.ShouldHaveLength, 1)
			id, ok := h.events[0].Int64Field("studentId")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(id, convey.ShouldEqual, int64(7))
		})

		convey.Convey("It drops a redelivered event", func() {
			c.HandleMessage(ctx, encode(t, created))
			convey.So(c.HandleMessage(ctx, encode(t, created)), convey.ShouldEqual, outcomeDuplicate)
			convey.So(h.events, convey.ShouldHaveLength, 1)
		})

		convey.Convey("It lets a failed event be handled again", func() {
			h.err = errors.New("boom")
			convey.So(c.HandleMessage(ctx, encode(t, created)), convey.ShouldEqual, outcomeFailed)
			h.err = nil
			convey.So(c.HandleMessage(ctx, encode(t, created)), convey.ShouldEqual, outcomeHandled)
			convey.So(h.events, convey.ShouldHaveLength, 2)
		})

		convey.Convey("It skips malformed payloads", func() {
			bad := kafkago.Message{Topic: "distrischool.student.created", Value: []byte("{not json")}
			convey.So(c.HandleMessage(ctx, bad), convey.ShouldEqual, outcomeMalformed)
			empty := kafkago.Message{Value: []byte(`{"eventId":"x"}`)}
			convey.So(c.HandleMessage(ctx, empty), convey.ShouldEqual, outcomeMalformed)
			convey.So(h.events, convey.ShouldBeEmpty)
		})

		convey.Convey("Run commits every message including malformed ones", func() {
			r.pending = []kafkago.Message{
				encode(t, created),
				{Value: []byte("garbage")},
				encode(t, created),
			}
			convey.So(c.Run(ctx), convey.ShouldBeNil)
			convey.So(r.committed, convey.ShouldHaveLength, 3)
			convey.So(h.events, convey.ShouldHaveLength, 1)
		})
	})

	convey.Convey("A consumer needs a handler", t, func() {
		_, err := NewConsumer([]string{"localhost:9092"}, "g", []string{"t"}, nil)
		convey.So(err, convey.ShouldNotBeNil)
	})
}
