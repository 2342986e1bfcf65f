// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a grade.
type Status string

// Known grade statuses.
const (
	StatusRegistered Status = "REGISTERED"
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusDisputed   Status = "DISPUTED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every valid status in declaration order.
var Statuses = []Status{ //nolint:gochecknoglobals // read-only enum table
	StatusRegistered,
	StatusPending,
	StatusConfirmed,
	StatusDisputed,
	StatusCancelled,
}

// ParseStatus maps a case-insensitive name to a Status.
func ParseStatus(s string) (Status, bool) {
	up := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range Statuses {
		if st == up {
			return st, true
		}
	}
	return "", false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Thresholds used by the standing predicates.
var (
	ApprovalThreshold = decimal.NewFromInt(7) //nolint:gochecknoglobals // constant decimal
	RecoveryThreshold = decimal.NewFromInt(5) //nolint:gochecknoglobals // constant decimal
)

// Grade is a single recorded grade of a student for an evaluation.
type Grade struct {
	ID           int64
	StudentID    int64
	TeacherID    int64
	ClassID      *int64
	EvaluationID int64

	// Value is nil when the grade carries no numeric value.
	Value     *decimal.Decimal
	GradeDate *time.Time

	Notes       string
	Status      Status
	IsAutomatic bool
	PostedAt    *time.Time

	AcademicYear     int
	AcademicSemester int

	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
	DeletedAt *time.Time
	DeletedBy string
}

// IsDeleted reports whether the grade was soft-deleted.
func (g *Grade) IsDeleted() bool { return g.DeletedAt != nil }

// MarkDeleted soft-deletes the grade.
func (g *Grade) MarkDeleted(by string, at time.Time) {
	t := at
	g.DeletedAt = &t
	g.DeletedBy = by
}

// Confirm moves the grade to CONFIRMED and stamps PostedAt the first time.
func (g *Grade) Confirm(at time.Time) {
	g.Status = StatusConfirmed
	if g.PostedAt == nil {
		t := at
		g.PostedAt = &t
	}
}

// IsApproved reports value >= 7.
func (g *Grade) IsApproved() bool {
	return g.Value != nil && g.Value.GreaterThanOrEqual(ApprovalThreshold)
}

// IsRecovery reports 5 <= value < 7.
func (g *Grade) IsRecovery() bool {
	return g.Value != nil &&
		g.Value.GreaterThanOrEqual(RecoveryThreshold) &&
		g.Value.LessThan(ApprovalThreshold)
}

// IsFailed reports value < 5.
func (g *Grade) IsFailed() bool {
	return g.Value != nil && g.Value.LessThan(RecoveryThreshold)
}

// GradeInput is the write shape accepted by create and update.
// Zero ids mean "not provided".
type GradeInput struct {
	StudentID    int64
	TeacherID    int64
	ClassID      int64
	EvaluationID int64

	Value     *decimal.Decimal
	GradeDate *time.Time

	Notes       string
	Status      Status
	IsAutomatic *bool

	AcademicYear     int
	AcademicSemester int
}

// Period narrows grade queries to an academic year and/or semester.
type Period struct {
	AcademicYear     *int
	AcademicSemester *int
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Date truncates t to a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
