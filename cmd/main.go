package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/cache"
	"github.com/distrischool/grade-service/internal/adapters/clients"
	"github.com/distrischool/grade-service/internal/adapters/http/api"
	"github.com/distrischool/grade-service/internal/adapters/mq/kafka"
	"github.com/distrischool/grade-service/internal/adapters/repository"
	app "github.com/distrischool/grade-service/internal/app"
	"github.com/distrischool/grade-service/internal/auth"
	"github.com/distrischool/grade-service/internal/config"
	"github.com/distrischool/grade-service/internal/domain/dedupe"
	"github.com/distrischool/grade-service/internal/domain/grading"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/shopspring/decimal"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 15 * time.Second
	connMaxLifetime        = 30 * time.Minute
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // build stamp

func main() {
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "grade service failed", logger.Error(err))
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: stop already called
	}
}

func run(ctx context.Context) error {
	// defaults -> optional YAML -> optional dotenv -> env
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.InitWithFormat(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newAPIServer(cfg, svc, log).Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("db_driver", cfg.DBDriver),
			logger.Bool("kafka", len(cfg.KafkaBrokers) > 0),
			logger.Bool("redis", cfg.RedisAddr != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newService builds the grade service and every adapter cfg enables.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	store, err := repository.Open(ctx, repository.Driver(cfg.DBDriver), cfg.DBDSN,
		repository.WithPoolLimits(cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, connMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithTeacherValidation(cfg.ValidateTeacher),
		app.WithTopics(app.Topics{
			GradeCreated: cfg.KafkaTopicGradeCreated,
			GradeUpdated: cfg.KafkaTopicGradeUpdated,
			GradeDeleted: cfg.KafkaTopicGradeDeleted,
		}),
	}

	if cfg.RedisAddr != "" {
		c, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			cache.WithTTL(cfg.CacheTTL()),
			cache.WithLogger(log),
		)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("dial redis: %w", err)
		}
		opts = append(opts, app.WithCache(c))
	}

	opts = append(opts, directoryOptions(cfg, log)...)

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers, kafka.WithPublisherLogger(log))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		opts = append(opts,
			app.WithPublisher(pub),
			app.WithConsumer(consumerFactory(cfg, log)),
		)
	}

	return app.New(opts...), nil
}

// directoryOptions points the service at the collaborator services that
// have a URL. The rest stay on the permissive in-process directory.
func directoryOptions(cfg *config.Config, log logger.Logger) []app.Option {
	clientOpts := []clients.Option{
		clients.WithTimeout(cfg.ClientTimeout()),
		clients.WithRetries(cfg.ClientRetries),
		clients.WithLogger(log),
	}
	var opts []app.Option
	if cfg.ClassServiceURL != "" {
		opts = append(opts, app.WithClassDirectory(clients.NewClassClient(cfg.ClassServiceURL, clientOpts...)))
	}
	if cfg.StudentServiceURL != "" {
		opts = append(opts, app.WithStudentDirectory(clients.NewStudentClient(cfg.StudentServiceURL, clientOpts...)))
	}
	if cfg.TeacherServiceURL != "" {
		opts = append(opts, app.WithTeacherDirectory(clients.NewTeacherClient(cfg.TeacherServiceURL, clientOpts...)))
	}
	if cfg.AuthServiceURL != "" {
		opts = append(opts, app.WithUserDirectory(clients.NewAuthClient(cfg.AuthServiceURL, clientOpts...)))
	}
	return opts
}

func consumerFactory(cfg *config.Config, log logger.Logger) app.ConsumerFactory {
	return func(h app.EventHandler) (app.Consumer, error) {
		c, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.InboundTopics(), h,
			kafka.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
			kafka.WithConsumerLogger(log),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func newAPIServer(cfg *config.Config, svc *app.Service, log logger.Logger) *api.Server {
	return api.NewServer(svc, svc,
		api.WithAuthenticator(auth.NewAuthenticator(cfg.JWTSecret, auth.WithRequired(cfg.AuthRequired))),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
		api.WithPageLimits(cfg.DefaultPageSize, cfg.MaxPageSize),
		api.WithRequestTimeout(cfg.RequestTimeout()),
		api.WithClassifier(grading.NewClassifier(
			grading.WithApprovalThreshold(decimal.NewFromFloat(cfg.ApprovalThreshold)),
			grading.WithRecoveryThreshold(decimal.NewFromFloat(cfg.RecoveryThreshold)),
		)),
		api.WithVersion(version),
		api.WithLogger(log),
	)
}

// startServiceMetricsUpdater refreshes the stored-grade gauge, which
// GetStats updates as a side effect.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
