// Package repository persists grade records.
package repository

import (
	"context"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
)

// Query filters grade records. Zero fields do not filter. Soft-deleted
// records are never returned.
type Query struct {
	StudentID        *int64
	TeacherID        *int64
	ClassID          *int64
	EvaluationID     *int64
	AcademicYear     *int
	AcademicSemester *int
	Status           model.Status
	// HasClass keeps only records attached to a class.
	HasClass bool
}

// Store provides read/write access to grade records.
type Store interface {
	// Create assigns an id and timestamps and returns the stored record.
	Create(ctx context.Context, g model.Grade) (model.Grade, error)
	// Update overwrites an existing record, soft-deleted ones included.
	Update(ctx context.Context, g model.Grade) (model.Grade, error)
	// Get returns a live record or ErrNotFound.
	Get(ctx context.Context, id int64) (model.Grade, error)
	// Find returns every matching record ordered by id.
	Find(ctx context.Context, q Query) ([]model.Grade, error)
	// List returns one page of matching records.
	List(ctx context.Context, q Query, page types.PageRequest) (types.Page[model.Grade], error)
	// Count returns the number of matching records.
	Count(ctx context.Context, q Query) (int64, error)
	Close() error
}

// sortColumns maps API sort keys to column names.
//
//nolint:gochecknoglobals // read-only lookup table
var sortColumns = map[string]string{
	"id":           "id",
	"studentId":    "student_id",
	"evaluationId": "evaluation_id",
	"gradeValue":   "grade_value",
	"gradeDate":    "grade_date",
	"createdAt":    "created_at",
	"academicYear": "academic_year",
}

// ValidSort reports whether key is an accepted sort key.
func ValidSort(key string) bool {
	_, ok := sortColumns[key]
	return ok
}

func (q Query) matches(g *model.Grade) bool {
	switch {
	case g.IsDeleted():
		return false
	case q.StudentID != nil && g.StudentID != *q.StudentID:
		return false
	case q.TeacherID != nil && g.TeacherID != *q.TeacherID:
		return false
	case q.ClassID != nil && (g.ClassID == nil || *g.ClassID != *q.ClassID):
		return false
	case q.EvaluationID != nil && g.EvaluationID != *q.EvaluationID:
		return false
	case q.AcademicYear != nil && g.AcademicYear != *q.AcademicYear:
		return false
	case q.AcademicSemester != nil && g.AcademicSemester != *q.AcademicSemester:
		return false
	case q.Status != "" && g.Status != q.Status:
		return false
	case q.HasClass && g.ClassID == nil:
		return false
	}
	return true
}
