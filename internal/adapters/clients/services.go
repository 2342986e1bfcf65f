package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/distrischool/grade-service/internal/domain/model"
)

// ClassClient reads classes from the schedule service.
type ClassClient struct{ c *Client }

// NewClassClient creates a class directory client.
func NewClassClient(baseURL string, opts ...Option) *ClassClient {
	return &ClassClient{c: NewClient("class", baseURL, opts...)}
}

type classDTO struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Code            string  `json:"code"`
	AcademicYear    string  `json:"academicYear"`
	Period          string  `json:"period"`
	Capacity        int     `json:"capacity"`
	CurrentStudents int     `json:"currentStudents"`
	Room            string  `json:"room"`
	Active          bool    `json:"active"`
	StudentIDs      []int64 `json:"studentIds"`
	TeacherIDs      []int64 `json:"teacherIds"`
}

// GetClass returns the class and its roster. ErrNotFound when unknown.
func (cc *ClassClient) GetClass(ctx context.Context, id int64) (model.ClassInfo, error) {
	var dto classDTO
	if err := cc.c.Get(ctx, "/api/v1/classes/"+strconv.FormatInt(id, 10), &dto); err != nil {
		return model.ClassInfo{}, err
	}
	if dto.ID == 0 {
		dto.ID = id
	}
	return model.ClassInfo{
		ID:              dto.ID,
		Name:            dto.Name,
		Code:            dto.Code,
		AcademicYear:    dto.AcademicYear,
		Period:          dto.Period,
		Capacity:        dto.Capacity,
		CurrentStudents: dto.CurrentStudents,
		Room:            dto.Room,
		Active:          dto.Active,
		StudentIDs:      dto.StudentIDs,
		TeacherIDs:      dto.TeacherIDs,
	}, nil
}

// StudentClient checks students against the student service.
type StudentClient struct{ c *Client }

// NewStudentClient creates a student directory client.
func NewStudentClient(baseURL string, opts ...Option) *StudentClient {
	return &StudentClient{c: NewClient("student", baseURL, opts...)}
}

// GetStudent returns nil when the student exists.
func (sc *StudentClient) GetStudent(ctx context.Context, id int64) error {
	return sc.c.Get(ctx, "/api/v1/students/"+strconv.FormatInt(id, 10), nil)
}

// TeacherClient checks teachers against the teacher service.
type TeacherClient struct{ c *Client }

// NewTeacherClient creates a teacher directory client.
func NewTeacherClient(baseURL string, opts ...Option) *TeacherClient {
	return &TeacherClient{c: NewClient("teacher", baseURL, opts...)}
}

// GetTeacher returns nil when the teacher exists.
func (tc *TeacherClient) GetTeacher(ctx context.Context, id int64) error {
	return tc.c.Get(ctx, "/api/v1/teachers/"+strconv.FormatInt(id, 10), nil)
}

// AuthClient resolves user accounts to student ids.
type AuthClient struct{ c *Client }

// NewAuthClient creates an auth service client.
func NewAuthClient(baseURL string, opts ...Option) *AuthClient {
	return &AuthClient{c: NewClient("auth", baseURL, opts...)}
}

// StudentIDForUser asks the dedicated endpoint first and falls back to the
// user document when that endpoint does not exist.
func (ac *AuthClient) StudentIDForUser(ctx context.Context, userID int64) (int64, error) {
	base := "/api/v1/users/" + strconv.FormatInt(userID, 10)

	var data map[string]any
	err := ac.c.Get(ctx, base+"/student-id", &data)
	if errors.Is(err, ErrNotFound) {
		data = nil
		err = ac.c.Get(ctx, base, &data)
	}
	if errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("%w: user %d", ErrNoStudent, userID)
	}
	if err != nil {
		return 0, err
	}
	return studentID(data, userID)
}

func studentID(data map[string]any, userID int64) (int64, error) {
	switch v := data["studentId"].(type) {
	case json.Number:
		if id, err := v.Int64(); err == nil {
			return id, nil
		}
	case string:
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: user %d", ErrNoStudent, userID)
}
