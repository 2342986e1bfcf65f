// Package api exposes the grade service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/http/site"
	"github.com/distrischool/grade-service/internal/adapters/http/swagger"
	"github.com/distrischool/grade-service/internal/auth"
	"github.com/distrischool/grade-service/internal/domain/aggregation"
	"github.com/distrischool/grade-service/internal/domain/grading"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "DistriSchool Grade Management Service"

const defaultRequestTimeout = 30 * time.Second

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateGrade(ctx context.Context, in model.GradeInput, actor string) (model.Grade, error)
	GetGrade(ctx context.Context, id int64) (model.Grade, error)
	ListGrades(ctx context.Context, page types.PageRequest) (types.Page[model.Grade], error)
	ListStudentGrades(ctx context.Context, studentID int64, page types.PageRequest) (types.Page[model.Grade], error)
	ListEvaluationGrades(ctx context.Context, evaluationID int64, page types.PageRequest) (types.Page[model.Grade], error)
	ListUserGrades(ctx context.Context, userID int64, page types.PageRequest) (types.Page[model.Grade], error)
	UpdateGrade(ctx context.Context, id int64, in model.GradeInput, actor string) (model.Grade, error)
	DeleteGrade(ctx context.Context, id int64, actor string) error

	StudentAverage(ctx context.Context, studentID int64, year, semester int) (decimal.Decimal, error)
	ClassSummary(ctx context.Context, classID int64, period model.Period, maxGradesPerStudent int) (aggregation.ClassSummary, error)
	ClassAverage(ctx context.Context, classID int64, period model.Period, maxGradesPerStudent int) (decimal.Decimal, error)
	GlobalAverage(ctx context.Context, period model.Period, maxGradesPerStudent int) (decimal.Decimal, error)
}

// Server wires HTTP routes for the grade API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	gradesHandler     *GradesHandler
	aggregatesHandler *AggregatesHandler

	auth           *auth.Authenticator
	corsOrigins    []string
	requestTimeout time.Duration
}

// Option applies a configuration option to the Server.
type Option func(*serverConfig)

type serverConfig struct {
	auth           *auth.Authenticator
	classifier     *grading.Classifier
	corsOrigins    []string
	pages          pageLimits
	requestTimeout time.Duration
	version        string
	logger         logger.Logger
}

// WithAuthenticator sets how bearer tokens are checked.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(c *serverConfig) {
		if a != nil {
			c.auth = a
		}
	}
}

// WithClassifier sets how grades are labelled approved/recovery/failed.
func WithClassifier(cl *grading.Classifier) Option {
	return func(c *serverConfig) {
		if cl != nil {
			c.classifier = cl
		}
	}
}

// WithCORSOrigins sets the allowed origins. Empty allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(c *serverConfig) {
		c.corsOrigins = origins
	}
}

// WithPageLimits sets the default and maximum page sizes.
func WithPageLimits(defaultSize, maxSize int) Option {
	return func(c *serverConfig) {
		if defaultSize > 0 {
			c.pages.defaultSize = defaultSize
		}
		if maxSize > 0 {
			c.pages.maxSize = maxSize
		}
	}
}

// WithRequestTimeout bounds every request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithVersion sets the version reported by /health/info.
func WithVersion(v string) Option {
	return func(c *serverConfig) {
		if v != "" {
			c.version = v
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{
		pages:          pageLimits{defaultSize: types.DefaultPageSize, maxSize: types.MaxPageSize},
		requestTimeout: defaultRequestTimeout,
		version:        "dev",
		logger:         logger.Get(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pages.maxSize < cfg.pages.defaultSize {
		cfg.pages.maxSize = cfg.pages.defaultSize
	}
	if cfg.classifier == nil {
		cfg.classifier = grading.NewClassifier()
	}
	rsp := responder{logger: cfg.logger.Named("http-api")}
	if cfg.auth == nil {
		cfg.auth = auth.NewAuthenticator("")
	}
	cfg.auth.SetErrorWriter(func(w http.ResponseWriter, r *http.Request, err error) {
		rsp.fail(w, r, classify("api.auth", err))
	})

	return &Server{
		healthHandler:     NewHealthHandler(cfg.version, rsp),
		statsHandler:      NewStatsHandler(statsProvider, rsp),
		gradesHandler:     NewGradesHandler(deps, cfg.classifier, cfg.pages, rsp),
		aggregatesHandler: NewAggregatesHandler(deps, cfg.classifier, rsp),
		auth:              cfg.auth,
		corsOrigins:       cfg.corsOrigins,
		requestTimeout:    cfg.requestTimeout,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.UserIDHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	swagger.Register(r)
	site.Register(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
		r.Get("/health/info", MetricsMiddleware(s.healthHandler.HandleInfo, "health_info"))
		r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Route("/grades", func(r chi.Router) {
				g, a := s.gradesHandler, s.aggregatesHandler
				r.Post("/", MetricsMiddleware(g.HandleCreate, "grades_create"))
				r.Get("/", MetricsMiddleware(g.HandleList, "grades_list"))
				r.Get("/{id}", MetricsMiddleware(g.HandleGet, "grades_get"))
				r.Put("/{id}", MetricsMiddleware(g.HandleUpdate, "grades_update"))
				r.Delete("/{id}", MetricsMiddleware(g.HandleDelete, "grades_delete"))
				r.Get("/student/{studentId}", MetricsMiddleware(g.HandleListByStudent, "grades_by_student"))
				r.Get("/evaluation/{evaluationId}", MetricsMiddleware(g.HandleListByEvaluation, "grades_by_evaluation"))
				r.Get("/user/{userId}", MetricsMiddleware(g.HandleListByUser, "grades_by_user"))

				r.Get("/student/{studentId}/average", MetricsMiddleware(a.HandleStudentAverage, "student_average"))
				r.Get("/classes/average", MetricsMiddleware(a.HandleGlobalAverage, "global_average"))
				r.Get("/classes/{classId}/grades", MetricsMiddleware(a.HandleClassSummary, "class_summary"))
				r.Get("/classes/{classId}/grades/export", MetricsMiddleware(a.HandleClassExport, "class_export"))
				r.Get("/classes/{classId}/average", MetricsMiddleware(a.HandleClassAverage, "class_average"))
			})
		})
	})
	return r
}

func (s *Server) origins() []string {
	if len(s.corsOrigins) == 0 {
		return []string{"*"}
	}
	return s.corsOrigins
}

// envelope is the body of every API response.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Meta    meta       `json:"meta"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type meta struct {
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// responder writes enveloped responses.
type responder struct {
	logger logger.Logger
}

func (rs responder) ok(w http.ResponseWriter, r *http.Request, status int, data any, msg string) {
	writeJSON(w, status, envelope{
		Success: true,
		Data:    data,
		Message: msg,
		Meta:    newMeta(r),
	})
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		rs.logger.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		if status == http.StatusInternalServerError {
			msg = http.StatusText(status)
		}
	}
	writeJSON(w, status, envelope{
		Error: &errorBody{Code: code, Message: msg},
		Meta:  newMeta(r),
	})
}

func newMeta(r *http.Request) meta {
	return meta{RequestID: middleware.GetReqID(r.Context()), Timestamp: time.Now().UTC()}
}
