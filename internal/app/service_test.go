package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/mq/queue"
	service "github.com/distrischool/grade-service/internal/app"
	"github.com/distrischool/grade-service/internal/domain/grading"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test clock

func clock() time.Time { return fixedNow }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func date(y int, m time.Month, d int) *time.Time {
	t := model.Date(y, m, d)
	return &t
}

func input(student, evaluation int64, value string) model.GradeInput {
	return model.GradeInput{
		StudentID:        student,
		TeacherID:        100,
		ClassID:          10,
		EvaluationID:     evaluation,
		Value:            dec(value),
		GradeDate:        date(2024, time.March, int(evaluation%28)+1),
		AcademicYear:     2024,
		AcademicSemester: 1,
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []model.Message
}

func (p *recordingPublisher) Publish(_ context.Context, m model.Message) error { //nolint:gocritic // hugeParam: mirrors Publisher
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
	return nil
}

func (p *recordingPublisher) all() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Message(nil), p.messages...)
}

type countingCache struct {
	mu      sync.Mutex
	entries map[int64]model.Grade
	flushes int
	hits    int
}

func newCountingCache() *countingCache {
	return &countingCache{entries: make(map[int64]model.Grade)}
}

func (c *countingCache) Get(_ context.Context, id int64) (model.Grade, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return g, ok
}

func (c *countingCache) Set(_ context.Context, g model.Grade) { //nolint:gocritic // hugeParam: mirrors Cache
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[g.ID] = g
}

func (c *countingCache) Flush(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]model.Grade)
	c.flushes++
}

type brokenDirectory struct{}

func (brokenDirectory) GetStudent(context.Context, int64) error {
	return errors.New("connection refused")
}

type fakeConsumer struct {
	ran    chan struct{}
	closed bool
}

func (c *fakeConsumer) Run(ctx context.Context) error {
	close(c.ran)
	<-ctx.Done()
	return nil
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

func strictDirectory() *service.MemoryDirectory {
	dir := service.NewMemoryDirectory(true)
	dir.AddClass(model.ClassInfo{ID: 10, Name: "Math", Code: "MAT-1", StudentIDs: []int64{1, 2, 3}})
	dir.AddClass(model.ClassInfo{ID: 20, Name: "Physics", Code: "PHY-1", StudentIDs: []int64{1, 9}})
	dir.AddClass(model.ClassInfo{ID: 30, Name: "Open"})
	dir.AddStudent(1, 2, 3, 4, 9)
	dir.AddTeacher(100)
	dir.LinkUser(500, 2)
	return dir
}

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(logger.Nop()),
		service.WithClock(clock),
		service.WithDirectory(strictDirectory()),
	}
	return service.New(append(base, opts...)...)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))
		So(svc, ShouldNotBeNil)

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it reports itself as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["totalGrades"], ShouldEqual, int64(0))
				svc.Stop()
			})

			Convey("And stopping it twice is safe", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given a service with a consumer", t, func() {
		c := &fakeConsumer{ran: make(chan struct{})}
		var handler service.EventHandler
		svc := newService(service.WithConsumer(func(h service.EventHandler) (service.Consumer, error) {
			handler = h
			return c, nil
		}))

		So(svc.Start(context.Background()), ShouldBeNil)
		select {
		case <-c.ran:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer was not started")
		}
		So(handler, ShouldNotBeNil)
		So(svc.GetStats()["consumer"], ShouldEqual, true)

		svc.Stop()
		So(c.closed, ShouldBeTrue)
	})

	Convey("A failing consumer factory aborts start", t, func() {
		svc := newService(service.WithConsumer(func(service.EventHandler) (service.Consumer, error) {
			return nil, errors.New("no brokers")
		}))
		So(svc.Start(context.Background()), ShouldNotBeNil)
		So(svc.GetStats()["started"], ShouldEqual, false)
	})
}

func TestService_FullOutbox(t *testing.T) {
	Convey("Given an outbox with room for one event and no publishers", t, func() {
		ctx := context.Background()
		outbox := queue.NewInMemoryQueue(queue.WithCapacity(1))
		svc := newService(service.WithOutbox(outbox))

		Convey("Writes still succeed and the overflow event is dropped", func() {
			_, err := svc.CreateGrade(ctx, input(1, 1, "7"), "t")
			So(err, ShouldBeNil)
			_, err = svc.CreateGrade(ctx, input(2, 1, "8"), "t")
			So(err, ShouldBeNil)

			So(outbox.Len(ctx), ShouldEqual, 1)
			So(svc.GetStats()["totalGrades"], ShouldEqual, int64(2))
		})
	})
}

func TestService_CreateGrade(t *testing.T) {
	Convey("Given a service over a strict directory", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		c := newCountingCache()
		svc := newService(service.WithPublisher(pub), service.WithCache(c))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("A valid grade is stored with defaults and announced", func() {
			g, err := svc.CreateGrade(ctx, input(1, 1, "8.5"), "teacher-7")
			So(err, ShouldBeNil)
			So(g.ID, ShouldBeGreaterThan, 0)
			So(g.Status, ShouldEqual, model.StatusRegistered)
			So(g.IsAutomatic, ShouldBeFalse)
			So(g.CreatedBy, ShouldEqual, "teacher-7")
			So(*g.ClassID, ShouldEqual, int64(10))
			So(g.PostedAt, ShouldBeNil)
			So(c.flushes, ShouldEqual, 1)

			svc.Stop()
			msgs := pub.all()
			So(msgs, ShouldHaveLength, 1)
			So(msgs[0].Topic, ShouldEqual, "distrischool.grade.created")
			So(msgs[0].Key, ShouldEqual, "1")
			So(msgs[0].Event.EventType, ShouldEqual, model.EventGradeCreated)
			So(msgs[0].Event.Data["gradeValue"], ShouldEqual, "8.50")
		})

		Convey("A confirmed grade is stamped as posted", func() {
			in := input(1, 2, "7")
			in.Status = model.StatusConfirmed
			g, err := svc.CreateGrade(ctx, in, "system")
			So(err, ShouldBeNil)
			So(g.Status, ShouldEqual, model.StatusConfirmed)
			So(g.PostedAt, ShouldNotBeNil)
			So(g.PostedAt.Equal(fixedNow), ShouldBeTrue)
			svc.Stop()
		})

		Convey("Invalid input reports every field", func() {
			in := input(1, 1, "11")
			in.AcademicSemester = 3
			_, err := svc.CreateGrade(ctx, in, "system")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
			var verr *grading.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Fields, ShouldHaveLength, 2)
			svc.Stop()
		})

		Convey("Unknown collaborators are rejected", func() {
			_, err := svc.CreateGrade(ctx, input(42, 1, "5"), "system")
			So(errors.Is(err, service.ErrStudentNotFound), ShouldBeTrue)

			in := input(1, 1, "5")
			in.ClassID = 99
			_, err = svc.CreateGrade(ctx, in, "system")
			So(errors.Is(err, service.ErrClassNotFound), ShouldBeTrue)

			in = input(4, 1, "5")
			_, err = svc.CreateGrade(ctx, in, "system")
			So(errors.Is(err, service.ErrStudentNotInClass), ShouldBeTrue)

			in.ClassID = 30
			_, err = svc.CreateGrade(ctx, in, "system")
			So(err, ShouldBeNil)
			svc.Stop()
		})

		Convey("A second live grade for the same evaluation conflicts", func() {
			first, err := svc.CreateGrade(ctx, input(1, 1, "5"), "system")
			So(err, ShouldBeNil)
			_, err = svc.CreateGrade(ctx, input(1, 1, "6"), "system")
			So(errors.Is(err, service.ErrDuplicateGrade), ShouldBeTrue)

			So(svc.DeleteGrade(ctx, first.ID, "system"), ShouldBeNil)
			_, err = svc.CreateGrade(ctx, input(1, 1, "6"), "system")
			So(err, ShouldBeNil)
			svc.Stop()
		})
	})

	Convey("Given teacher validation", t, func() {
		svc := newService(service.WithTeacherValidation(true))
		in := input(1, 1, "5")
		in.TeacherID = 101
		_, err := svc.CreateGrade(context.Background(), in, "system")
		So(errors.Is(err, service.ErrTeacherNotFound), ShouldBeTrue)
	})

	Convey("Given an unreachable student service", t, func() {
		svc := newService(service.WithStudentDirectory(brokenDirectory{}))
		_, err := svc.CreateGrade(context.Background(), input(1, 1, "5"), "system")
		So(errors.Is(err, service.ErrUpstream), ShouldBeTrue)
	})
}

func TestService_ReadUpdateDelete(t *testing.T) {
	Convey("Given a stored grade", t, func() {
		ctx := context.Background()
		c := newCountingCache()
		svc := newService(service.WithCache(c))
		g, err := svc.CreateGrade(ctx, input(1, 1, "6"), "teacher")
		So(err, ShouldBeNil)

		Convey("Get reads through the cache", func() {
			got, err := svc.GetGrade(ctx, g.ID)
			So(err, ShouldBeNil)
			So(got.Value.StringFixed(2), ShouldEqual, "6.00")
			_, err = svc.GetGrade(ctx, g.ID)
			So(err, ShouldBeNil)
			So(c.hits, ShouldEqual, 1)
		})

		Convey("Get of an unknown id is not found", func() {
			_, err := svc.GetGrade(ctx, 999)
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Update changes the value and status", func() {
			in := input(1, 1, "9")
			in.Notes = "re-graded"
			in.Status = model.StatusConfirmed
			updated, err := svc.UpdateGrade(ctx, g.ID, in, "coordinator")
			So(err, ShouldBeNil)
			So(updated.Value.StringFixed(2), ShouldEqual, "9.00")
			So(updated.Notes, ShouldEqual, "re-graded")
			So(updated.Status, ShouldEqual, model.StatusConfirmed)
			So(updated.PostedAt, ShouldNotBeNil)
			So(updated.UpdatedBy, ShouldEqual, "coordinator")
			So(updated.CreatedBy, ShouldEqual, "teacher")
		})

		Convey("Update without a status keeps the current one", func() {
			updated, err := svc.UpdateGrade(ctx, g.ID, input(1, 1, "4"), "system")
			So(err, ShouldBeNil)
			So(updated.Status, ShouldEqual, model.StatusRegistered)
		})

		Convey("Moving to another class re-checks enrollment", func() {
			in := input(1, 1, "6")
			in.ClassID = 20
			moved, err := svc.UpdateGrade(ctx, g.ID, in, "system")
			So(err, ShouldBeNil)
			So(*moved.ClassID, ShouldEqual, int64(20))

			other, err := svc.CreateGrade(ctx, input(2, 2, "6"), "system")
			So(err, ShouldBeNil)
			in = input(2, 2, "6")
			in.ClassID = 20
			_, err = svc.UpdateGrade(ctx, other.ID, in, "system")
			So(errors.Is(err, service.ErrStudentNotInClass), ShouldBeTrue)
		})

		Convey("Update of an unknown id is not found", func() {
			_, err := svc.UpdateGrade(ctx, 999, input(1, 1, "6"), "system")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Delete hides the grade", func() {
			So(svc.DeleteGrade(ctx, g.ID, "admin"), ShouldBeNil)
			_, err := svc.GetGrade(ctx, g.ID)
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			So(errors.Is(svc.DeleteGrade(ctx, g.ID, "admin"), service.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Listing(t *testing.T) {
	Convey("Given grades for several students", t, func() {
		ctx := context.Background()
		svc := newService()
		for i := int64(1); i <= 3; i++ {
			_, err := svc.CreateGrade(ctx, input(1, i, "7"), "system")
			So(err, ShouldBeNil)
		}
		_, err := svc.CreateGrade(ctx, input(2, 1, "5"), "system")
		So(err, ShouldBeNil)

		Convey("Listing pages through everything", func() {
			p, err := svc.ListGrades(ctx, types.PageRequest{Page: 0, Size: 3})
			So(err, ShouldBeNil)
			So(p.Content, ShouldHaveLength, 3)
			So(p.TotalElements, ShouldEqual, int64(4))
			So(p.TotalPages, ShouldEqual, 2)
		})

		Convey("An unknown sort key is a validation error", func() {
			_, err := svc.ListGrades(ctx, types.PageRequest{SortBy: "password"})
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("Listing by student and by evaluation filters", func() {
			p, err := svc.ListStudentGrades(ctx, 1, types.PageRequest{})
			So(err, ShouldBeNil)
			So(p.TotalElements, ShouldEqual, int64(3))

			p, err = svc.ListEvaluationGrades(ctx, 1, types.PageRequest{})
			So(err, ShouldBeNil)
			So(p.TotalElements, ShouldEqual, int64(2))
		})

		Convey("Listing by user resolves the student first", func() {
			p, err := svc.ListUserGrades(ctx, 500, types.PageRequest{})
			So(err, ShouldBeNil)
			So(p.TotalElements, ShouldEqual, int64(1))
			So(p.Content[0].StudentID, ShouldEqual, int64(2))

			_, err = svc.ListUserGrades(ctx, 501, types.PageRequest{})
			So(errors.Is(err, service.ErrNoStudentForUser), ShouldBeTrue)
		})
	})
}

func TestService_Aggregates(t *testing.T) {
	Convey("Given grades in two classes", t, func() {
		ctx := context.Background()
		svc := newService()
		create := func(student, evaluation, class int64, value string, status model.Status) {
			in := input(student, evaluation, value)
			in.ClassID = class
			in.Status = status
			_, err := svc.CreateGrade(ctx, in, "system")
			So(err, ShouldBeNil)
		}
		create(1, 1, 10, "8", model.StatusConfirmed)
		create(1, 2, 10, "6", model.StatusConfirmed)
		create(1, 3, 10, "10", model.StatusRegistered)
		create(2, 4, 10, "7", "")
		create(9, 5, 20, "4", model.StatusConfirmed)

		Convey("The student average only counts confirmed grades", func() {
			avg, err := svc.StudentAverage(ctx, 1, 2024, 1)
			So(err, ShouldBeNil)
			So(avg.StringFixed(2), ShouldEqual, "7.00")

			avg, err = svc.StudentAverage(ctx, 2, 2024, 1)
			So(err, ShouldBeNil)
			So(avg.StringFixed(2), ShouldEqual, "0.00")
		})

		Convey("The class summary follows the roster", func() {
			summary, err := svc.ClassSummary(ctx, 10, model.Period{}, 3)
			So(err, ShouldBeNil)
			So(summary.ClassName, ShouldEqual, "Math")
			So(summary.TotalStudents, ShouldEqual, 3)
			So(summary.StudentsWithGrades, ShouldEqual, 2)
			So(summary.Students[0].Average.Decimal.StringFixed(2), ShouldEqual, "8.00")
			So(summary.Students[2].Average.Valid, ShouldBeFalse)
			So(summary.ClassAverage.StringFixed(2), ShouldEqual, "7.50")

			avg, err := svc.ClassAverage(ctx, 10, model.Period{}, 1)
			So(err, ShouldBeNil)
			So(avg.StringFixed(2), ShouldEqual, "8.50")
		})

		Convey("A period filter narrows the grades", func() {
			summary, err := svc.ClassSummary(ctx, 10, model.Period{AcademicYear: model.IntPtr(2023)}, 3)
			So(err, ShouldBeNil)
			So(summary.StudentsWithGrades, ShouldEqual, 0)
			So(summary.ClassAverage.StringFixed(2), ShouldEqual, "0.00")
		})

		Convey("An unknown class fails the summary", func() {
			_, err := svc.ClassSummary(ctx, 99, model.Period{}, 3)
			So(errors.Is(err, service.ErrClassNotFound), ShouldBeTrue)
		})

		Convey("The global average spans every class", func() {
			avg, err := svc.GlobalAverage(ctx, model.Period{}, 3)
			So(err, ShouldBeNil)
			So(avg.StringFixed(2), ShouldEqual, "6.33")
		})
	})
}

func TestService_HandleEvent(t *testing.T) {
	Convey("Platform events are accepted", t, func() {
		svc := newService()
		for _, typ := range []string{model.EventStudentCreated, model.EventTeacherCreated, "course.created"} {
			e := model.NewEvent(typ, map[string]any{"studentId": float64(3)}, fixedNow)
			So(svc.HandleEvent(context.Background(), e), ShouldBeNil)
		}
	})
}
