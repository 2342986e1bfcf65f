package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom naming", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("grades"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithPrometheusRegistry(registry),
			)
			m.operations.WithLabelValues("create", "ok").Inc()

			Convey("Then collectors carry the configured prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "test_grades_operations_total")
			})
		})

		Convey("When registering the same names twice", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the duplicate registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording grade operations", func() {
			before := testutil.ToFloat64(globalManager.operations.WithLabelValues("create", "ok"))
			RecordGradeOperation("create", "ok")
			RecordGradeOperation("create", "ok")

			Convey("Then the counter advances", func() {
				So(testutil.ToFloat64(globalManager.operations.WithLabelValues("create", "ok")), ShouldEqual, before+2)
			})
		})

		Convey("When recording cache outcomes", func() {
			hits := testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("hit"))
			misses := testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("miss"))
			RecordCacheResult("hit")
			RecordCacheResult("miss")
			RecordCacheResult("miss")

			Convey("Then hits and misses are tracked separately", func() {
				So(testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("hit")), ShouldEqual, hits+1)
				So(testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("miss")), ShouldEqual, misses+2)
			})
		})

		Convey("When setting gauges", func() {
			UpdateStoredGrades(12)
			UpdateQueueSize(3)
			UpdateWorkerCount(4)

			Convey("Then the last value wins", func() {
				So(testutil.ToFloat64(globalManager.storedGrades), ShouldEqual, 12.0)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3.0)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4.0)
			})
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordStatusChange("CONFIRMED")
				RecordAggregation("class", 4)
				RecordStoreLatency("get", 0.3)
				RecordUpstreamRequest("class", "ok", 12)
				RecordEvent("outbound", "grade.created", "published")
				RecordEvent("inbound", "student.created", "handled")
				RecordEventDuplicate()
				RecordHTTPRequest("grades.get", "GET", "200")
				RecordHTTPRequestDuration("grades.get", "GET", "200", 3)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.5)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(3)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordErrorByComponent("repository", "not_found")
				RecordErrorByType("validation", "low")
				RecordErrorByEndpoint("grades.create", "POST", "validation")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)

			Convey("Then the global registry exposes them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 20)
			})
		})
	})
}
