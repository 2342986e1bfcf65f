package testgrades

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds configuration for a load and verification run.
type Config struct {
	BaseURL string // Base URL of the service
	Token   string // Optional bearer token

	Classes             int   // Number of classes to populate
	StudentsPerClass    int   // Students enrolled in each class
	GradesPerStudent    int   // Grades recorded per student
	MaxGradesPerStudent int   // Cap passed to the aggregate endpoints
	AcademicYear        int   // Term every grade belongs to
	AcademicSemester    int   // 1 or 2
	IDBase              int64 // Offset for class, student and evaluation ids; 0 derives one from the clock

	ClassServiceURL string  // Class service used to read rosters
	ClassIDs        []int64 // Real classes to grade; empty generates synthetic classes

	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // Pause between submission and verification
	OutputFile string        // Output file for submitted grades
	LogFile    string        // Log file for test output
	Verbose    bool          // Enable verbose logging
}

// GradeRequest is the body posted to /api/v1/grades.
type GradeRequest struct {
	StudentID        int64           `json:"studentId"`
	TeacherID        int64           `json:"teacherId"`
	ClassID          int64           `json:"classId"`
	EvaluationID     int64           `json:"evaluationId"`
	GradeValue       decimal.Decimal `json:"gradeValue"`
	GradeDate        string          `json:"gradeDate"`
	Notes            string          `json:"notes,omitempty"`
	Status           string          `json:"status,omitempty"`
	AcademicYear     int             `json:"academicYear"`
	AcademicSemester int             `json:"academicSemester"`
}

// Submitted is a generated grade together with the id the service gave it.
type Submitted struct {
	GradeRequest
	ID int64 `json:"id"`
}

// Stats holds run statistics.
type Stats struct {
	GradesGenerated  int
	GradesSubmitted  int
	GradesSuccessful int
	GradesConflict   int
	GradesFailed     int
	ClassesVerified  int
	ClassesMismatch  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
