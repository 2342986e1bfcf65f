package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/distrischool/grade-service/internal/config"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewService(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the service is built and started", func() {
			svc, err := newService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then it runs on the in-memory store without a consumer", func() {
				stats := svc.GetStats()
				convey.So(stats["started"], convey.ShouldBeTrue)
				convey.So(stats["consumer"], convey.ShouldBeFalse)
				convey.So(stats["totalGrades"], convey.ShouldEqual, int64(0))
			})
		})

		convey.Convey("When redis is configured", func() {
			mr := miniredis.RunT(t)
			cfg.RedisAddr = mr.Addr()

			svc, err := newService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc, convey.ShouldNotBeNil)
		})

		convey.Convey("When redis is unreachable", func() {
			cfg.RedisAddr = "127.0.0.1:1"

			_, err := newService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.DBDriver = "oracle"

			_, err := newService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestDirectoryOptions(t *testing.T) {
	convey.Convey("Given collaborator URLs", t, func() {
		cfg := config.New()
		convey.So(directoryOptions(cfg, logger.Nop()), convey.ShouldBeEmpty)

		cfg.ClassServiceURL = "http://class-service:8080"
		cfg.AuthServiceURL = "http://auth-service:8080"
		convey.So(directoryOptions(cfg, logger.Nop()), convey.ShouldHaveLength, 2)
	})
}

func TestAPIServer(t *testing.T) {
	convey.Convey("Given the wired HTTP server", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc, err := newService(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		h := newAPIServer(cfg, svc, logger.Nop()).Routes()

		convey.Convey("Health answers", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"status":"UP"`)
		})

		convey.Convey("A grade round-trips through the service", func() {
			body := `{"studentId":1,"teacherId":2,"classId":3,"evaluationId":4,"gradeValue":9.25,` +
				`"gradeDate":"2024-05-02","academicYear":2024,"academicSemester":1}`
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/grades", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(rec, req)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusCreated)

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/grades/classes/3/average", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"data":9.25`)
		})

		convey.Convey("Configured thresholds reach the standing", func() {
			cfg.ApprovalThreshold = 9.5
			h := newAPIServer(cfg, svc, logger.Nop()).Routes()
			body := `{"studentId":1,"teacherId":2,"classId":3,"evaluationId":5,"gradeValue":9.25,` +
				`"gradeDate":"2024-05-02","academicYear":2024,"academicSemester":1}`
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/grades", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(rec, req)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusCreated)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"standing":"recovery"`)
		})

		convey.Convey("Required auth rejects anonymous calls", func() {
			cfg.JWTSecret = "s3cret"
			cfg.AuthRequired = true
			h := newAPIServer(cfg, svc, logger.Nop()).Routes()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/grades", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusUnauthorized)
		})
	})
}
