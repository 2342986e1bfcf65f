package clients_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/clients"
	"github.com/distrischool/grade-service/internal/auth"
	"github.com/distrischool/grade-service/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func fast() []clients.Option {
	return []clients.Option{
		clients.WithBackoff(time.Millisecond),
		clients.WithTimeout(time.Second),
		clients.WithLogger(logger.Nop()),
	}
}

func TestClassClient(t *testing.T) {
	Convey("Given a class service", t, func() {
		var auths atomic.Value
		auths.Store("")
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v1/classes/10", func(w http.ResponseWriter, r *http.Request) {
			auths.Store(r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{
				"id":10,"name":"7A","code":"MAT-7A","academicYear":"2024","period":"MORNING",
				"capacity":30,"currentStudents":2,"room":"B12","active":true,
				"studentIds":[5,3],"teacherIds":[8],"schoolName":"ignored"}}`))
		})
		mux.HandleFunc("/api/v1/classes/11", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"message":"Turma não encontrada","data":null}`))
		})
		srv := httptest.NewServer(mux)
		Reset(srv.Close)
		cc := clients.NewClassClient(srv.URL, fast()...)

		Convey("When fetching a known class", func() {
			ctx := auth.WithToken(context.Background(), "tok-1")
			info, err := cc.GetClass(ctx, 10)

			Convey("Then the roster and fields are mapped", func() {
				So(err, ShouldBeNil)
				So(info.Name, ShouldEqual, "7A")
				So(info.Code, ShouldEqual, "MAT-7A")
				So(info.Period, ShouldEqual, "MORNING")
				So(info.StudentIDs, ShouldResemble, []int64{5, 3})
				So(info.TeacherIDs, ShouldResemble, []int64{8})
			})

			Convey("Then the caller token is forwarded", func() {
				So(auths.Load(), ShouldEqual, "Bearer tok-1")
			})
		})

		Convey("When the envelope reports failure", func() {
			_, err := cc.GetClass(context.Background(), 11)
			So(errors.Is(err, clients.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the class does not exist", func() {
			_, err := cc.GetClass(context.Background(), 12)
			So(errors.Is(err, clients.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestRetries(t *testing.T) {
	Convey("Given a flaky student service", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":1}}`))
		}))
		Reset(srv.Close)

		Convey("When enough retries are allowed", func() {
			sc := clients.NewStudentClient(srv.URL, append(fast(), clients.WithRetries(2))...)

			Convey("Then the third attempt succeeds", func() {
				So(sc.GetStudent(context.Background(), 1), ShouldBeNil)
				So(calls.Load(), ShouldEqual, int32(3))
			})
		})

		Convey("When retries run out", func() {
			sc := clients.NewStudentClient(srv.URL, append(fast(), clients.WithRetries(1))...)
			err := sc.GetStudent(context.Background(), 1)

			Convey("Then the service is unavailable", func() {
				So(errors.Is(err, clients.ErrUnavailable), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, int32(2))
			})
		})
	})

	Convey("Given a service rejecting the request", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))
		Reset(srv.Close)

		Convey("Then client errors are not retried", func() {
			err := clients.NewTeacherClient(srv.URL, fast()...).GetTeacher(context.Background(), 3)
			So(errors.Is(err, clients.ErrUnavailable), ShouldBeTrue)
			So(calls.Load(), ShouldEqual, int32(1))
		})
	})

	Convey("Given nothing listening", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		Convey("Then the call fails as unavailable", func() {
			err := clients.NewTeacherClient(url, append(fast(), clients.WithRetries(0))...).GetTeacher(context.Background(), 3)
			So(errors.Is(err, clients.ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestAuthClient(t *testing.T) {
	Convey("Given an auth service", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v1/users/1/student-id", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":{"studentId":501}}`))
		})
		mux.HandleFunc("/api/v1/users/2", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":2,"studentId":"502"}}`))
		})
		mux.HandleFunc("/api/v1/users/3", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":3,"email":"t@school"}}`))
		})
		mux.HandleFunc("/api/v1/users/5/student-id", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		srv := httptest.NewServer(mux)
		Reset(srv.Close)
		ac := clients.NewAuthClient(srv.URL, append(fast(), clients.WithRetries(0))...)
		ctx := context.Background()

		Convey("Then the dedicated endpoint is used when present", func() {
			id, err := ac.StudentIDForUser(ctx, 1)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, int64(501))
		})

		Convey("Then the user document is the fallback and string ids parse", func() {
			id, err := ac.StudentIDForUser(ctx, 2)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, int64(502))
		})

		Convey("Then a user without a student id is reported", func() {
			_, err := ac.StudentIDForUser(ctx, 3)
			So(errors.Is(err, clients.ErrNoStudent), ShouldBeTrue)
		})

		Convey("Then an unknown user has no student id", func() {
			_, err := ac.StudentIDForUser(ctx, 4)
			So(errors.Is(err, clients.ErrNoStudent), ShouldBeTrue)
		})

		Convey("Then upstream failures are not mistaken for a missing student", func() {
			_, err := ac.StudentIDForUser(ctx, 5)
			So(errors.Is(err, clients.ErrUnavailable), ShouldBeTrue)
		})
	})
}
