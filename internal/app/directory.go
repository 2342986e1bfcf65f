package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/distrischool/grade-service/internal/adapters/clients"
	"github.com/distrischool/grade-service/internal/domain/model"
)

// ClassDirectory resolves class rosters.
type ClassDirectory interface {
	GetClass(ctx context.Context, id int64) (model.ClassInfo, error)
}

// StudentDirectory checks that a student exists.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id int64) error
}

// TeacherDirectory checks that a teacher exists.
type TeacherDirectory interface {
	GetTeacher(ctx context.Context, id int64) error
}

// UserDirectory maps platform users to students.
type UserDirectory interface {
	StudentIDForUser(ctx context.Context, userID int64) (int64, error)
}

// MemoryDirectory is an in-process stand-in for the class, student, teacher
// and auth services. Unless strict, unknown students and teachers exist and
// unknown classes have an empty roster. Unknown users never resolve.
type MemoryDirectory struct {
	mu       sync.RWMutex
	strict   bool
	classes  map[int64]model.ClassInfo
	students map[int64]struct{}
	teachers map[int64]struct{}
	users    map[int64]int64
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory(strict bool) *MemoryDirectory {
	return &MemoryDirectory{
		strict:   strict,
		classes:  make(map[int64]model.ClassInfo),
		students: make(map[int64]struct{}),
		teachers: make(map[int64]struct{}),
		users:    make(map[int64]int64),
	}
}

// AddClass registers a class and its roster.
func (d *MemoryDirectory) AddClass(c model.ClassInfo) { //nolint:gocritic // hugeParam: stored by value
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[c.ID] = c
}

// AddStudent registers student ids.
func (d *MemoryDirectory) AddStudent(ids ...int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.students[id] = struct{}{}
	}
}

// AddTeacher registers teacher ids.
func (d *MemoryDirectory) AddTeacher(ids ...int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.teachers[id] = struct{}{}
	}
}

// LinkUser maps a user id to a student id.
func (d *MemoryDirectory) LinkUser(userID, studentID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = studentID
}

func (d *MemoryDirectory) GetClass(_ context.Context, id int64) (model.ClassInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.classes[id]; ok {
		c.StudentIDs = append([]int64(nil), c.StudentIDs...)
		return c, nil
	}
	if d.strict {
		return model.ClassInfo{}, fmt.Errorf("class %d: %w", id, clients.ErrNotFound)
	}
	return model.ClassInfo{ID: id, Active: true}, nil
}

func (d *MemoryDirectory) GetStudent(_ context.Context, id int64) error {
	return d.lookup(d.students, "student", id)
}

func (d *MemoryDirectory) GetTeacher(_ context.Context, id int64) error {
	return d.lookup(d.teachers, "teacher", id)
}

func (d *MemoryDirectory) StudentIDForUser(_ context.Context, userID int64) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.users[userID]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("user %d: %w", userID, clients.ErrNoStudent)
}

func (d *MemoryDirectory) lookup(set map[int64]struct{}, kind string, id int64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := set[id]; ok || !d.strict {
		return nil
	}
	return fmt.Errorf("%s %d: %w", kind, id, clients.ErrNotFound)
}
