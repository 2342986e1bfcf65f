// Package config defines service configuration and how it is loaded.
//
// Conventions:
// - Keys are flat snake_case koanf tags, mirrored as GRADE_* env vars.
// - New returns a Config carrying every default; Load layers overrides on top.
// - Errors wrap ErrInvalidConfig or ErrLoadConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8086".
	Addr string `koanf:"addr"`

	// DBDriver selects the grade store: memory, sqlite or postgres.
	DBDriver       string `koanf:"db_driver"`
	DBDSN          string `koanf:"db_dsn"`
	DBMaxOpenConns int    `koanf:"db_max_open_conns"`
	DBMaxIdleConns int    `koanf:"db_max_idle_conns"`

	// RedisAddr enables the grade cache when set.
	RedisAddr       string `koanf:"redis_addr"`
	RedisPassword   string `koanf:"redis_password"`
	RedisDB         int    `koanf:"redis_db"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds"`

	// KafkaBrokers enables the Kafka publisher and consumer when set.
	KafkaBrokers             []string `koanf:"kafka_brokers"`
	KafkaGroupID             string   `koanf:"kafka_group_id"`
	KafkaTopicGradeCreated   string   `koanf:"kafka_topic_grade_created"`
	KafkaTopicGradeUpdated   string   `koanf:"kafka_topic_grade_updated"`
	KafkaTopicGradeDeleted   string   `koanf:"kafka_topic_grade_deleted"`
	KafkaTopicStudentCreated string   `koanf:"kafka_topic_student_created"`
	KafkaTopicStudentUpdated string   `koanf:"kafka_topic_student_updated"`
	KafkaTopicStudentDeleted string   `koanf:"kafka_topic_student_deleted"`
	KafkaTopicTeacherCreated string   `koanf:"kafka_topic_teacher_created"`

	// Collaborator base URLs. An empty URL falls back to the in-process
	// directory.
	ClassServiceURL   string `koanf:"class_service_url"`
	StudentServiceURL string `koanf:"student_service_url"`
	TeacherServiceURL string `koanf:"teacher_service_url"`
	AuthServiceURL    string `koanf:"auth_service_url"`
	ClientTimeoutMS   int    `koanf:"client_timeout_ms"`
	ClientRetries     int    `koanf:"client_retries"`

	// ValidateTeacher checks the teacher of every written grade.
	ValidateTeacher bool `koanf:"validate_teacher"`

	// JWTSecret verifies bearer tokens; empty forwards them unverified.
	JWTSecret    string `koanf:"jwt_secret"`
	AuthRequired bool   `koanf:"auth_required"`

	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	// RequestTimeoutMS bounds one API request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// Standing thresholds reported next to every grade.
	ApprovalThreshold float64 `koanf:"approval_threshold"`
	RecoveryThreshold float64 `koanf:"recovery_threshold"`

	// EventQueueSize bounds the outbound event queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of publishing workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the inbound redelivery filter.
	DedupeSize int `koanf:"dedupe_size"`

	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// Known store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// New returns a Config holding every default.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":8086",
		DBDriver:                 DriverMemory,
		DBMaxOpenConns:           20,
		DBMaxIdleConns:           5,
		CacheTTLSeconds:          600,
		KafkaGroupID:             "grade-service",
		KafkaTopicGradeCreated:   "distrischool.grade.created",
		KafkaTopicGradeUpdated:   "distrischool.grade.updated",
		KafkaTopicGradeDeleted:   "distrischool.grade.deleted",
		KafkaTopicStudentCreated: "distrischool.student.created",
		KafkaTopicStudentUpdated: "distrischool.student.updated",
		KafkaTopicStudentDeleted: "distrischool.student.deleted",
		KafkaTopicTeacherCreated: "distrischool.teacher.created",
		ClientTimeoutMS:          5000,
		ClientRetries:            2,
		RequestTimeoutMS:         25_000,
		ApprovalThreshold:        7,
		RecoveryThreshold:        5,
		EventQueueSize:           10_000,
		WorkerCount:              runtime.NumCPU(),
		DedupeSize:               100_000,
		DefaultPageSize:          20,
		MaxPageSize:              100,
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverMemory && c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case c.DBDriver == DriverPostgres && c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn is required for postgres", ErrInvalidConfig)
	case c.DefaultPageSize < 1:
		return fmt.Errorf("%w: default_page_size must be positive", ErrInvalidConfig)
	case c.MaxPageSize < c.DefaultPageSize:
		return fmt.Errorf("%w: max_page_size must be at least default_page_size", ErrInvalidConfig)
	case c.AuthRequired && c.JWTSecret == "":
		return fmt.Errorf("%w: auth_required needs jwt_secret", ErrInvalidConfig)
	case c.RecoveryThreshold < 0 || c.RecoveryThreshold > c.ApprovalThreshold:
		return fmt.Errorf("%w: recovery_threshold must be between 0 and approval_threshold", ErrInvalidConfig)
	case c.EventQueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	return nil
}

// CacheTTL is CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ClientTimeout is ClientTimeoutMS as a duration.
func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.ClientTimeoutMS) * time.Millisecond
}

// RequestTimeout is RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// InboundTopics lists the topics the consumer subscribes to.
func (c *Config) InboundTopics() []string {
	return []string{
		c.KafkaTopicStudentCreated,
		c.KafkaTopicStudentUpdated,
		c.KafkaTopicStudentDeleted,
		c.KafkaTopicTeacherCreated,
	}
}
