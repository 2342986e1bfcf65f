package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
	"github.com/distrischool/grade-service/pkg/metrics"
)

// MemoryStore is a map-backed Store for tests and single-node runs.
type MemoryStore struct {
	mu     sync.RWMutex
	grades map[int64]model.Grade
	nextID int64
	opts   options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		grades: make(map[int64]model.Grade),
		opts:   o,
	}
}

func (s *MemoryStore) Create(_ context.Context, g model.Grade) (model.Grade, error) {
	defer observe("create", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.opts.now().UTC()
	g.ID = s.nextID
	g.CreatedAt = now
	g.UpdatedAt = now
	s.grades[g.ID] = clone(g)
	metrics.UpdateStoredGrades(len(s.grades))
	return clone(g), nil
}

func (s *MemoryStore) Update(_ context.Context, g model.Grade) (model.Grade, error) {
	defer observe("update", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.grades[g.ID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Grade{}, ErrNotFound
	}
	g.CreatedAt = prev.CreatedAt
	g.UpdatedAt = s.opts.now().UTC()
	s.grades[g.ID] = clone(g)
	return clone(g), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (model.Grade, error) {
	defer observe("get", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grades[id]
	if !ok || g.IsDeleted() {
		return model.Grade{}, ErrNotFound
	}
	return clone(g), nil
}

func (s *MemoryStore) Find(_ context.Context, q Query) ([]model.Grade, error) {
	defer observe("find", time.Now())

	out := s.filter(q)
	sortGrades(out, "id", types.Asc)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, q Query, page types.PageRequest) (types.Page[model.Grade], error) {
	defer observe("list", time.Now())

	page = page.Normalize()
	if !ValidSort(page.SortBy) {
		return types.Page[model.Grade]{}, ErrInvalidSort
	}
	all := s.filter(q)
	sortGrades(all, page.SortBy, page.Direction)

	total := int64(len(all))
	start := min(page.Offset(), len(all))
	end := min(start+page.Size, len(all))
	return types.NewPage(all[start:end], page, total), nil
}

func (s *MemoryStore) Count(_ context.Context, q Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for id := range s.grades {
		g := s.grades[id]
		if q.matches(&g) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) filter(q Query) []model.Grade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Grade, 0, len(s.grades))
	for id := range s.grades {
		g := s.grades[id]
		if q.matches(&g) {
			out = append(out, clone(g))
		}
	}
	return out
}

// sortGrades orders by key, nulls last in both directions, ties by id ASC.
func sortGrades(grades []model.Grade, key string, dir types.Direction) {
	slices.SortFunc(grades, func(a, b model.Grade) int {
		if an, bn := isNull(key, &a), isNull(key, &b); an != bn {
			return cmp.Compare(an, bn)
		}
		c := compareBy(key, &a, &b)
		if dir == types.Desc {
			c = -c
		}
		if c == 0 {
			return cmp.Compare(a.ID, b.ID)
		}
		return c
	})
}

func compareBy(key string, a, b *model.Grade) int {
	switch key {
	case "studentId":
		return cmp.Compare(a.StudentID, b.StudentID)
	case "evaluationId":
		return cmp.Compare(a.EvaluationID, b.EvaluationID)
	case "gradeValue":
		if a.Value == nil || b.Value == nil {
			return 0
		}
		return a.Value.Cmp(*b.Value)
	case "gradeDate":
		if a.GradeDate == nil || b.GradeDate == nil {
			return 0
		}
		return a.GradeDate.Compare(*b.GradeDate)
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "academicYear":
		return cmp.Compare(a.AcademicYear, b.AcademicYear)
	default:
		return cmp.Compare(a.ID, b.ID)
	}
}

func isNull(key string, g *model.Grade) int {
	if (key == "gradeValue" && g.Value == nil) || (key == "gradeDate" && g.GradeDate == nil) {
		return 1
	}
	return 0
}

// clone copies g so callers never share pointer fields with the store.
func clone(g model.Grade) model.Grade {
	if g.ClassID != nil {
		g.ClassID = model.Int64Ptr(*g.ClassID)
	}
	if g.Value != nil {
		v := *g.Value
		g.Value = &v
	}
	g.GradeDate = cloneTime(g.GradeDate)
	g.PostedAt = cloneTime(g.PostedAt)
	g.DeletedAt = cloneTime(g.DeletedAt)
	return g
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
