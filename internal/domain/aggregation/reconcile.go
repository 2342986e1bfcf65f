package aggregation

import "slices"

// Reconciliation is the ordered student list of a class summary.
type Reconciliation struct {
	// StudentIDs holds roster ids in roster order followed by Unrostered.
	StudentIDs []int64
	// Unrostered holds graded students missing from a known roster,
	// ascending. It stays empty when the roster itself is empty.
	Unrostered []int64
}

// Reconcile merges the roster with the set of graded student ids. Roster
// order wins; graded ids not on the roster follow in ascending order.
// Duplicates are dropped from both inputs.
func Reconcile(roster []int64, graded []int64) Reconciliation {
	seen := make(map[int64]struct{}, len(roster)+len(graded))
	out := Reconciliation{StudentIDs: make([]int64, 0, len(roster)+len(graded))}

	for _, id := range roster {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out.StudentIDs = append(out.StudentIDs, id)
	}

	extra := make([]int64, 0, len(graded))
	for _, id := range graded {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		extra = append(extra, id)
	}
	slices.Sort(extra)

	out.StudentIDs = append(out.StudentIDs, extra...)
	if len(roster) > 0 {
		out.Unrostered = extra
	} else {
		out.Unrostered = []int64{}
	}
	return out
}
