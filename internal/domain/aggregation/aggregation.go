// Package aggregation computes per-student, per-class and global grade
// averages from already-materialized grade records.
//
// Everything here is a pure function of its inputs: no I/O, no shared
// state, safe to call concurrently. Absent averages are reported as an
// invalid decimal.NullDecimal and never as zero; class and global averages
// degrade to 0.00 instead.
package aggregation

import (
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Selection cap policy.
const (
	MinGradesPerStudent     = 1
	MaxGradesPerStudent     = 3
	DefaultGradesPerStudent = 3

	// Scale is the number of fractional digits of every average.
	Scale = 2
)

// ClampCap forces limit into [MinGradesPerStudent, MaxGradesPerStudent].
func ClampCap(limit int) int {
	if limit < MinGradesPerStudent {
		return MinGradesPerStudent
	}
	if limit > MaxGradesPerStudent {
		return MaxGradesPerStudent
	}
	return limit
}

// studentGroups maps student ids to their grades in input order, and keeps
// the order in which each student was first seen.
type studentGroups struct {
	order  []int64
	grades map[int64][]model.Grade
}

// groupByStudent partitions grades in a single pass.
func groupByStudent(grades []model.Grade) studentGroups {
	g := studentGroups{grades: make(map[int64][]model.Grade)}
	for _, rec := range grades {
		if _, ok := g.grades[rec.StudentID]; !ok {
			g.order = append(g.order, rec.StudentID)
		}
		g.grades[rec.StudentID] = append(g.grades[rec.StudentID], rec)
	}
	return g
}

// meanOf averages present values; zero present values yield 0.00.
func meanOf(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero.Round(Scale)
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(values))), Scale)
}
