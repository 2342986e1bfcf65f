package testgrades

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/google/uuid"
)

// File permission constants.
const (
	directoryPermission = 0750
	outputPermission    = 0600
)

// Validate rejects configurations that cannot produce a meaningful run.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.New("url must not be empty")
	case c.Classes < 1 || c.StudentsPerClass < 1 || c.GradesPerStudent < 1:
		return errors.New("classes, students and grades must be positive")
	case c.Classes*c.StudentsPerClass >= evaluationOffset-studentIDOffset:
		return errors.New("too many students for one run")
	case c.AcademicSemester != 1 && c.AcademicSemester != 2:
		return errors.New("semester must be 1 or 2")
	case c.Workers < 1:
		return errors.New("workers must be positive")
	case len(c.ClassIDs) > 0 && c.ClassServiceURL == "":
		return errors.New("class-ids need class-service")
	}
	return nil
}

// Run executes the complete load and verification run.
func Run(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	stats := &Stats{StartTime: time.Now()}
	runID := uuid.NewString()
	layout := ids{base: idBase(cfg), studentsPerClass: cfg.StudentsPerClass, gradesPerStudent: cfg.GradesPerStudent}

	logger.Get().Info(ctx, "starting grade load test",
		logger.String("runID", runID),
		logger.String("baseURL", cfg.BaseURL),
		logger.Int64("idBase", layout.base),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()),
		logger.Bool("verbose", cfg.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, cfg); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Lay out classes and generate grades
	plans, err := planClasses(ctx, cfg, layout)
	if err != nil {
		return err
	}
	seed := uint64(time.Now().UnixNano()) //nolint:gosec // load data, not secrets
	rng := rand.New(rand.NewPCG(seed, uint64(layout.base)))
	grades := generateGrades(ctx, cfg, plans, layout, rng, runID, stats)

	// Step 3: Submit grades concurrently
	accepted := submitGrades(ctx, cfg, grades, stats)
	if len(accepted) == 0 {
		return errors.New("no grade was accepted")
	}

	// Step 4: Let the outbox drain before reading back
	if cfg.Settle > 0 {
		logger.Get().Info(ctx, "waiting before verification", logger.Duration("settle", cfg.Settle))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Settle):
		}
	}

	// Step 5: Verify aggregates against a local computation
	expected := expectedAverages(plans, accepted, cfg.MaxGradesPerStudent)
	if err := verifyResults(ctx, cfg, expected, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 6: Check one workbook
	if err := verifyExport(ctx, cfg, expected[0]); err != nil {
		return fmt.Errorf("export verification failed: %w", err)
	}

	// Step 7: Save grades to file
	if cfg.OutputFile != "" {
		if err := saveGradesToFile(ctx, cfg.OutputFile, accepted); err != nil {
			logger.Get().Warn(ctx, "failed to save grades to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, cfg *Config) error {
	logger.Get().Info(ctx, "checking service health")

	var health struct {
		Status string `json:"status"`
	}
	if err := newHTTPClient(cfg).GetData(ctx, apiPrefix+"/health", &health); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if health.Status != "UP" {
		return fmt.Errorf("service reports status %q", health.Status)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveGradesToFile writes the accepted grades as a JSON array.
func saveGradesToFile(ctx context.Context, filename string, grades []Submitted) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(grades, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal grades: %w", err)
	}
	if err := os.WriteFile(filename, raw, outputPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "grades saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, gradesPerSecond float64
	if stats.GradesSubmitted > 0 {
		successRate = float64(stats.GradesSuccessful) / float64(stats.GradesSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		gradesPerSecond = float64(stats.GradesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("gradesGenerated", stats.GradesGenerated),
		logger.Int("gradesSubmitted", stats.GradesSubmitted),
		logger.Int("gradesSuccessful", stats.GradesSuccessful),
		logger.Int("gradesConflict", stats.GradesConflict),
		logger.Int("gradesFailed", stats.GradesFailed),
		logger.Int("classesVerified", stats.ClassesVerified),
		logger.Int("classesMismatch", stats.ClassesMismatch),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("gradesPerSecond", gradesPerSecond))
}
