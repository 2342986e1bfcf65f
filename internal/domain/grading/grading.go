// Package grading holds the rules that apply to a single grade: input
// validation and the approval standing of a value.
package grading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Grade scale and academic period bounds.
const (
	minAcademicYear = 2000
	minSemester     = 1
	maxSemester     = 2
)

// Grade scale bounds, inclusive.
var (
	MinValue = decimal.Zero           //nolint:gochecknoglobals // constant decimal
	MaxValue = decimal.NewFromInt(10) //nolint:gochecknoglobals // constant decimal
)

// ErrInvalid is the sentinel wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid grade")

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a grade input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate checks a create or update input. All violations are reported at
// once; nil means the input is acceptable.
func Validate(in model.GradeInput) error {
	var fields []FieldError
	add := func(field, msg string) {
		fields = append(fields, FieldError{Field: field, Message: msg})
	}

	if in.StudentID <= 0 {
		add("studentId", "is required")
	}
	if in.TeacherID <= 0 {
		add("teacherId", "is required")
	}
	if in.ClassID <= 0 {
		add("classId", "is required")
	}
	if in.EvaluationID <= 0 {
		add("evaluationId", "is required")
	}
	switch {
	case in.Value == nil:
		add("gradeValue", "is required")
	case in.Value.LessThan(MinValue) || in.Value.GreaterThan(MaxValue):
		add("gradeValue", fmt.Sprintf("must be between %s and %s", MinValue, MaxValue))
	}
	if in.GradeDate == nil {
		add("gradeDate", "is required")
	}
	if in.AcademicYear < minAcademicYear {
		add("academicYear", fmt.Sprintf("must be %d or later", minAcademicYear))
	}
	if in.AcademicSemester < minSemester || in.AcademicSemester > maxSemester {
		add("academicSemester", fmt.Sprintf("must be %d or %d", minSemester, maxSemester))
	}
	if in.Status != "" && !in.Status.Valid() {
		add("status", "unknown status "+string(in.Status))
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
