package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/distrischool/grade-service/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8086")
			convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.ClientTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.ClientRetries, convey.ShouldEqual, 2)
			convey.So(cfg.RequestTimeout(), convey.ShouldEqual, 25*time.Second)
			convey.So(cfg.ApprovalThreshold, convey.ShouldEqual, 7.0)
			convey.So(cfg.RecoveryThreshold, convey.ShouldEqual, 5.0)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DefaultPageSize, convey.ShouldEqual, 20)
			convey.So(cfg.MaxPageSize, convey.ShouldEqual, 100)
			convey.So(cfg.KafkaBrokers, convey.ShouldBeEmpty)
			convey.So(cfg.KafkaTopicGradeCreated, convey.ShouldEqual, "distrischool.grade.created")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the consumer subscribes to student and teacher topics", func() {
			convey.So(cfg.InboundTopics(), convey.ShouldResemble, []string{
				"distrischool.student.created",
				"distrischool.student.updated",
				"distrischool.student.deleted",
				"distrischool.teacher.created",
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }},
		{"unknown driver", func(c *config.Config) { c.DBDriver = "oracle" }},
		{"postgres without dsn", func(c *config.Config) { c.DBDriver = config.DriverPostgres }},
		{"max page below default", func(c *config.Config) { c.MaxPageSize = 10 }},
		{"zero default page", func(c *config.Config) { c.DefaultPageSize = 0 }},
		{"auth required without secret", func(c *config.Config) { c.AuthRequired = true }},
		{"zero queue", func(c *config.Config) { c.EventQueueSize = 0 }},
		{"recovery above approval", func(c *config.Config) { c.RecoveryThreshold = 8 }},
		{"negative recovery", func(c *config.Config) { c.RecoveryThreshold = -1 }},
		{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
	}

	convey.Convey("Given inconsistent settings", t, func() {
		for _, tc := range cases {
			cfg := config.New()
			tc.mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		}
	})

	convey.Convey("Given sqlite without a dsn", t, func() {
		cfg := config.New()
		cfg.DBDriver = config.DriverSQLite
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
