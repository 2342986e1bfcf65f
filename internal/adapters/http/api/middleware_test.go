package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given handlers behind the metrics middleware", t, func() {
		Convey("A handler that writes nothing is counted as 200", func() {
			h := MetricsMiddleware(func(http.ResponseWriter, *http.Request) {}, "noop")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("The status a handler writes passes through", func() {
			h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusConflict)
			}, "dup")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			So(rec.Code, ShouldEqual, http.StatusConflict)
		})
	})

	Convey("Error statuses are labelled", t, func() {
		So(errorKind(http.StatusBadGateway), ShouldEqual, "upstream_error")
		So(errorKind(http.StatusConflict), ShouldEqual, "conflict")
		So(errorKind(http.StatusTeapot), ShouldEqual, "client_error")
		So(errorKind(599), ShouldEqual, "server_error")
		So(severity(http.StatusNotFound), ShouldEqual, "medium")
		So(severity(http.StatusInternalServerError), ShouldEqual, "high")
	})
}
