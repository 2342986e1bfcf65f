package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/distrischool/grade-service/pkg/metrics"
	"github.com/go-chi/chi/v5/middleware"
)

// statusKinds names the error label of the statuses handlers emit.
var statusKinds = map[int]string{ //nolint:gochecknoglobals // lookup table
	http.StatusBadRequest:          "client_error",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "client_error",
	http.StatusConflict:            "conflict",
	http.StatusTooManyRequests:     "rate_limit",
	http.StatusBadGateway:          "upstream_error",
	http.StatusServiceUnavailable:  "server_error",
	http.StatusGatewayTimeout:      "timeout",
	http.StatusInternalServerError: "server_error",
}

// MetricsMiddleware records request count and latency for endpoint, plus the
// error counters when the handler answers with a 4xx or 5xx.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// nothing written; net/http answers 200
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		elapsed := float64(time.Since(start).Microseconds()) / 1000

		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, elapsed)

		if status < http.StatusBadRequest {
			return
		}
		kind := errorKind(status)
		metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
		metrics.RecordErrorByType(kind, severity(status))
	}
}

func errorKind(status int) string {
	if kind, ok := statusKinds[status]; ok {
		return kind
	}
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}

// severity is high for server side failures, medium for everything the
// caller can fix.
func severity(status int) string {
	if status >= http.StatusInternalServerError {
		return "high"
	}
	return "medium"
}
