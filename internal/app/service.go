// Package service implements grade management on top of the store, the
// cache, the collaborator directories and the event outbox.
package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/cache"
	eventqueue "github.com/distrischool/grade-service/internal/adapters/mq/queue"
	workerpool "github.com/distrischool/grade-service/internal/adapters/mq/worker"
	"github.com/distrischool/grade-service/internal/adapters/repository"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
)

const (
	defaultWorkerCount = 2
	defaultQueueSize   = 10000
	shutdownTimeout    = 10 * time.Second
)

// Topics names the outbound topics.
type Topics struct {
	GradeCreated string
	GradeUpdated string
	GradeDeleted string
}

// DefaultTopics returns the platform topic names.
func DefaultTopics() Topics {
	return Topics{
		GradeCreated: "distrischool.grade.created",
		GradeUpdated: "distrischool.grade.updated",
		GradeDeleted: "distrischool.grade.deleted",
	}
}

// EventHandler reacts to inbound platform events.
type EventHandler interface {
	HandleEvent(ctx context.Context, e model.Event) error
}

// Consumer feeds inbound events to a handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context) error
	Close() error
}

// ConsumerFactory builds the inbound consumer around the service.
type ConsumerFactory func(h EventHandler) (Consumer, error)

// Service implements the grade API dependencies.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	cache     cache.Cache
	classes   ClassDirectory
	students  StudentDirectory
	teachers  TeacherDirectory
	users     UserDirectory
	outbox    eventqueue.Queue
	publisher workerpool.Publisher
	pool      *workerpool.Pool

	newConsumer ConsumerFactory
	consumer    Consumer
	consumerWG  sync.WaitGroup

	// Configuration
	topics          Topics
	validateTeacher bool
	workerCount     int
	queueSize       int
	now             func() time.Time

	// State
	started  bool
	cancel   context.CancelFunc
	stopRead context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the grade store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithCache sets the read cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithClassDirectory sets the roster source.
func WithClassDirectory(d ClassDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.classes = d
		}
	}
}

// WithStudentDirectory sets the student existence check.
func WithStudentDirectory(d StudentDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.students = d
		}
	}
}

// WithTeacherDirectory sets the teacher existence check.
func WithTeacherDirectory(d TeacherDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.teachers = d
		}
	}
}

// WithUserDirectory sets the user to student resolver.
func WithUserDirectory(d UserDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.users = d
		}
	}
}

// WithDirectory uses one directory for classes, students, teachers and users.
func WithDirectory(d *MemoryDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.classes, s.students, s.teachers, s.users = d, d, d, d
		}
	}
}

// WithOutbox sets the queue events are staged on before publishing.
func WithOutbox(q eventqueue.Queue) Option {
	return func(s *Service) {
		if q != nil {
			s.outbox = q
		}
	}
}

// WithPublisher sets where outbox events are delivered.
func WithPublisher(p workerpool.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithConsumer registers the inbound event consumer.
func WithConsumer(f ConsumerFactory) Option {
	return func(s *Service) {
		s.newConsumer = f
	}
}

// WithTopics overrides the outbound topic names. Empty names keep defaults.
func WithTopics(t Topics) Option {
	return func(s *Service) {
		if t.GradeCreated != "" {
			s.topics.GradeCreated = t.GradeCreated
		}
		if t.GradeUpdated != "" {
			s.topics.GradeUpdated = t.GradeUpdated
		}
		if t.GradeDeleted != "" {
			s.topics.GradeDeleted = t.GradeDeleted
		}
	}
}

// WithTeacherValidation makes create check the teacher directory.
func WithTeacherValidation(enabled bool) Option {
	return func(s *Service) {
		s.validateTeacher = enabled
	}
}

// WithWorkerCount sets the number of outbox publishers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the outbox capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Components that are not injected get
// in-process defaults: a memory store, no cache, a permissive directory, a
// bounded outbox and a log publisher.
func New(opts ...Option) *Service {
	s := &Service{
		topics:      DefaultTopics(),
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("grade-service")
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithClock(s.now))
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	dir := NewMemoryDirectory(false)
	if s.classes == nil {
		s.classes = dir
	}
	if s.students == nil {
		s.students = dir
	}
	if s.teachers == nil {
		s.teachers = dir
	}
	if s.users == nil {
		s.users = dir
	}
	if s.outbox == nil {
		s.outbox = s.newOutbox()
	}
	if s.publisher == nil {
		s.publisher = workerpool.NewLogPublisher(s.logger)
	}
	return s
}

func (s *Service) newOutbox() eventqueue.Queue {
	return eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
}

// Start launches the outbox publishers and the inbound consumer. The
// components outlive ctx until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting grade service...")

	if s.outbox.IsClosed() {
		s.outbox = s.newOutbox()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.pool = workerpool.NewPool(s.workerCount, s.outbox, s.publisher,
		workerpool.WithLogger(s.logger),
	)
	s.pool.Start(runCtx)

	if s.newConsumer != nil {
		c, err := s.newConsumer(s)
		if err != nil {
			_ = s.pool.Stop()
			cancel()
			return err
		}
		s.consumer = c
		readCtx, stopRead := context.WithCancel(runCtx)
		s.stopRead = stopRead
		s.consumerWG.Add(1)
		go func() {
			defer s.consumerWG.Done()
			if err := c.Run(readCtx); err != nil {
				s.logger.Error(readCtx, "consumer stopped", logger.Error(err))
			}
		}()
	}

	s.started = true
	s.logger.Info(ctx, "grade service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("consumer", s.consumer != nil),
	)
	return nil
}

// Stop drains the outbox and closes every component.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping grade service...")

	if s.consumer != nil {
		s.stopRead()
		s.consumerWG.Wait()
		if err := s.consumer.Close(); err != nil {
			s.logger.Warn(ctx, "failed to close consumer", logger.Error(err))
		}
		s.consumer = nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	if err := s.pool.Shutdown(drainCtx); err != nil {
		s.logger.Warn(ctx, "outbox not fully drained", logger.Error(err))
	}
	cancel()
	s.cancel()

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn(ctx, "failed to close publisher", logger.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "failed to close store", logger.Error(err))
	}
	if c, ok := s.cache.(io.Closer); ok {
		_ = c.Close()
	}

	s.started = false
	s.logger.Info(ctx, "grade service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"consumer":    s.consumer != nil,
	}

	stats["queueLength"] = s.outbox.Len(ctx)
	if total, err := s.store.Count(ctx, repository.Query{}); err == nil {
		stats["totalGrades"] = total
		metrics.UpdateStoredGrades(int(total))
	}
	if s.pool != nil && s.started {
		stats["activeWorkers"] = s.pool.Active()
	}
	return stats
}

// HandleEvent reacts to student and teacher lifecycle events. Grades are not
// touched; the events are recorded for audit.
func (s *Service) HandleEvent(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: matches EventHandler
	fields := []logger.Field{
		logger.String("event_id", e.EventID),
		logger.String("event_type", e.EventType),
		logger.String("source", e.Source),
	}
	switch e.EventType {
	case model.EventStudentCreated, model.EventStudentUpdated, model.EventStudentDeleted:
		if id, ok := e.Int64Field("studentId"); ok {
			fields = append(fields, logger.Int64("student_id", id))
		}
	case model.EventTeacherCreated:
		if id, ok := e.Int64Field("teacherId"); ok {
			fields = append(fields, logger.Int64("teacher_id", id))
		}
	default:
		s.logger.Debug(ctx, "ignoring event", fields...)
		return nil
	}
	s.logger.Info(ctx, "platform event received", fields...)
	return nil
}

// publish stages an event on the outbox. A full outbox drops the event.
func (s *Service) publish(ctx context.Context, topic string, g *model.Grade, e model.Event) { //nolint:gocritic // hugeParam: event copied into the message
	m := model.Message{Topic: topic, Key: model.Int64Key(g.StudentID), Event: e}
	if s.outbox.Enqueue(ctx, m) {
		metrics.RecordEvent("outbound", e.EventType, "queued")
		return
	}
	metrics.RecordEvent("outbound", e.EventType, "dropped")
	s.logger.Warn(ctx, "outbox full, event dropped",
		logger.String("event_id", e.EventID),
		logger.String("event_type", e.EventType),
		logger.Int64("grade_id", g.ID),
	)
}

// outcome names the result of an operation for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrStudentNotInClass):
		return "invalid"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrClassNotFound),
		errors.Is(err, ErrStudentNotFound), errors.Is(err, ErrTeacherNotFound),
		errors.Is(err, ErrNoStudentForUser):
		return "not_found"
	case errors.Is(err, ErrDuplicateGrade):
		return "conflict"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}

func (s *Service) record(op string, err error) {
	metrics.RecordGradeOperation(op, outcome(err))
	if err != nil && outcome(err) == "error" {
		metrics.RecordErrorByComponent("service", op)
	}
}
