package aggregation

import (
	"time"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Snapshot is the read-only view of a selected grade.
type Snapshot struct {
	GradeID          int64
	EvaluationID     int64
	Value            *decimal.Decimal
	GradeDate        *time.Time
	AcademicYear     int
	AcademicSemester int
}

// StudentSummary is one student's row in a class summary.
type StudentSummary struct {
	StudentID int64
	// OnRoster is false for graded students missing from a known roster.
	OnRoster bool
	// Average is computed over Grades only, not the full history.
	Average decimal.NullDecimal
	Grades  []Snapshot
}

// ClassSummary is the aggregated view of one class.
type ClassSummary struct {
	ClassID      int64
	ClassName    string
	ClassCode    string
	Period       string
	AcademicYear string

	TotalStudents       int
	StudentsWithGrades  int
	MaxGradesPerStudent int
	ClassAverage        decimal.Decimal

	Students             []StudentSummary
	UnrosteredStudentIDs []int64
}

// BuildClassSummary selects up to limit grades per student, averages them and
// rolls the per-student averages up to a class average. The student order
// comes from Reconcile, so identical inputs always give identical output.
func BuildClassSummary(info model.ClassInfo, grades []model.Grade, limit int) ClassSummary {
	limit = ClampCap(limit)
	groups := groupByStudent(grades)
	rec := Reconcile(info.StudentIDs, groups.order)

	unrostered := make(map[int64]struct{}, len(rec.Unrostered))
	for _, id := range rec.Unrostered {
		unrostered[id] = struct{}{}
	}

	students := make([]StudentSummary, 0, len(rec.StudentIDs))
	present := make([]decimal.Decimal, 0, len(rec.StudentIDs))
	for _, id := range rec.StudentIDs {
		selected := Select(groups.grades[id], limit)
		avg := Average(selected)
		if avg.Valid {
			present = append(present, avg.Decimal)
		}
		_, off := unrostered[id]
		students = append(students, StudentSummary{
			StudentID: id,
			OnRoster:  !off,
			Average:   avg,
			Grades:    snapshots(selected),
		})
	}

	return ClassSummary{
		ClassID:              info.ID,
		ClassName:            info.Name,
		ClassCode:            info.Code,
		Period:               info.Period,
		AcademicYear:         info.AcademicYear,
		TotalStudents:        len(rec.StudentIDs),
		StudentsWithGrades:   len(present),
		MaxGradesPerStudent:  limit,
		ClassAverage:         meanOf(present),
		Students:             students,
		UnrosteredStudentIDs: rec.Unrostered,
	}
}

func snapshots(grades []model.Grade) []Snapshot {
	out := make([]Snapshot, len(grades))
	for i, g := range grades {
		out[i] = Snapshot{
			GradeID:          g.ID,
			EvaluationID:     g.EvaluationID,
			Value:            g.Value,
			GradeDate:        g.GradeDate,
			AcademicYear:     g.AcademicYear,
			AcademicSemester: g.AcademicSemester,
		}
	}
	return out
}
