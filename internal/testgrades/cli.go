package testgrades

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/spf13/cobra"
)

// Default configuration constants.
const (
	defaultClasses          = 20
	defaultStudentsPerClass = 30
	defaultGradesPerStudent = 4
	defaultWorkers          = 2 // multiplier for runtime.NumCPU()
	defaultTimeout          = 30 * time.Second
	defaultSettle           = 2 * time.Second
	defaultRunTimeout       = 10 * time.Minute
	logFilePermission       = 0600
)

// NewCommand builds the test-grades command.
func NewCommand() *cobra.Command {
	cfg := &Config{}
	var runTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "test-grades",
		Short: "Load the grade service and verify its class averages",
		Long: `test-grades posts a synthetic term of grades to a running grade service,
then recomputes every class average locally and compares it with what the
service reports. One class workbook is downloaded and checked as well.`,
		Example: `  # Test with default settings
  test-grades

  # A bigger run against another host
  test-grades --url http://localhost:8086 --classes 100 --students 40 --workers 16

  # Grade the real rosters of two classes
  test-grades --class-service http://localhost:8082 --class-ids 12,14

  # Keep the submitted grades
  test-grades --output out/grades.json --verbose`,
		SilenceUsage: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return SetupLogging(cfg.LogFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()
			return Run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8086", "Base URL of the service")
	f.StringVar(&cfg.Token, "token", os.Getenv("GRADE_TEST_TOKEN"), "Bearer token sent with every request")
	f.IntVar(&cfg.Classes, "classes", defaultClasses, "Number of classes to populate")
	f.IntVar(&cfg.StudentsPerClass, "students", defaultStudentsPerClass, "Students per class")
	f.IntVar(&cfg.GradesPerStudent, "grades", defaultGradesPerStudent, "Grades per student")
	f.IntVar(&cfg.MaxGradesPerStudent, "max-grades", 3, "maxGradesPerStudent passed to the aggregate endpoints")
	f.IntVar(&cfg.AcademicYear, "year", time.Now().Year(), "Academic year of the generated grades")
	f.IntVar(&cfg.AcademicSemester, "semester", 1, "Academic semester of the generated grades")
	f.StringVar(&cfg.ClassServiceURL, "class-service", "", "Class service used to read rosters of --class-ids")
	f.Int64SliceVar(&cfg.ClassIDs, "class-ids", nil, "Grade the rosters of these classes instead of synthetic ones")
	f.Int64Var(&cfg.IDBase, "id-base", 0, "Offset for generated ids (default: derived from the clock)")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", defaultSettle, "Pause between submission and verification")
	f.DurationVar(&runTimeout, "deadline", defaultRunTimeout, "Overall deadline of the run")
	f.StringVar(&cfg.OutputFile, "output", "", "Output file for submitted grades")
	f.StringVar(&cfg.LogFile, "log", "", "Log file for test output (default: stdout only)")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")

	return cmd
}

// SetupLogging sends progress output to stdout and, when logFile is set,
// to that file as well.
func SetupLogging(logFile string) error {
	var w io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
	}
	if err := logger.InitWithFormat(w, logger.FormatText); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return nil
}
