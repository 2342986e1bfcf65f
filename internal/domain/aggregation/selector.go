package aggregation

import (
	"slices"

	"github.com/distrischool/grade-service/internal/domain/model"
)

// Select returns at most limit grades, most recent first: grade date
// descending with undated grades last, then id descending with unassigned
// ids (0) last. The input slice is left untouched.
func Select(grades []model.Grade, limit int) []model.Grade {
	if len(grades) == 0 || limit < 1 {
		return []model.Grade{}
	}
	sorted := slices.Clone(grades)
	slices.SortStableFunc(sorted, compareRecency)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// compareRecency orders a before b when a is more recent.
func compareRecency(a, b model.Grade) int {
	switch {
	case a.GradeDate != nil && b.GradeDate == nil:
		return -1
	case a.GradeDate == nil && b.GradeDate != nil:
		return 1
	case a.GradeDate != nil && b.GradeDate != nil && !a.GradeDate.Equal(*b.GradeDate):
		if a.GradeDate.After(*b.GradeDate) {
			return -1
		}
		return 1
	}

	switch {
	case a.ID != 0 && b.ID == 0:
		return -1
	case a.ID == 0 && b.ID != 0:
		return 1
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}
