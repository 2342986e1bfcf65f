package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/distrischool/grade-service/internal/adapters/clients"
	"github.com/distrischool/grade-service/internal/adapters/repository"
	"github.com/distrischool/grade-service/internal/domain/grading"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
)

// CreateGrade validates in against the collaborators and stores a new grade.
func (s *Service) CreateGrade(ctx context.Context, in model.GradeInput, actor string) (model.Grade, error) { //nolint:gocritic // hugeParam: input is a value type
	g, err := s.createGrade(ctx, in, actor)
	s.record("create", err)
	return g, err
}

func (s *Service) createGrade(ctx context.Context, in model.GradeInput, actor string) (model.Grade, error) { //nolint:gocritic // hugeParam: input is a value type
	if err := grading.Validate(in); err != nil {
		return model.Grade{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.checkStudent(ctx, in.StudentID); err != nil {
		return model.Grade{}, err
	}
	if err := s.checkEnrollment(ctx, in.ClassID, in.StudentID); err != nil {
		return model.Grade{}, err
	}
	if s.validateTeacher {
		if err := s.checkTeacher(ctx, in.TeacherID); err != nil {
			return model.Grade{}, err
		}
	}

	n, err := s.store.Count(ctx, repository.Query{
		StudentID:    model.Int64Ptr(in.StudentID),
		EvaluationID: model.Int64Ptr(in.EvaluationID),
	})
	if err != nil {
		return model.Grade{}, fmt.Errorf("check duplicate grade: %w", err)
	}
	if n > 0 {
		return model.Grade{}, fmt.Errorf("student %d, evaluation %d: %w", in.StudentID, in.EvaluationID, ErrDuplicateGrade)
	}

	now := s.now()
	g := model.Grade{
		StudentID:        in.StudentID,
		TeacherID:        in.TeacherID,
		ClassID:          model.Int64Ptr(in.ClassID),
		EvaluationID:     in.EvaluationID,
		Value:            in.Value,
		GradeDate:        in.GradeDate,
		Notes:            in.Notes,
		Status:           model.StatusRegistered,
		AcademicYear:     in.AcademicYear,
		AcademicSemester: in.AcademicSemester,
		CreatedBy:        actor,
		UpdatedBy:        actor,
	}
	if in.IsAutomatic != nil {
		g.IsAutomatic = *in.IsAutomatic
	}
	if in.Status != "" {
		g.Status = in.Status
	}
	if g.Status == model.StatusConfirmed {
		g.Confirm(now)
	}

	created, err := s.store.Create(ctx, g)
	if err != nil {
		return model.Grade{}, fmt.Errorf("store grade: %w", err)
	}
	s.cache.Flush(ctx)
	s.publish(ctx, s.topics.GradeCreated, &created, model.GradeCreatedEvent(&created, now))

	s.logger.Info(ctx, "grade created",
		logger.Int64("grade_id", created.ID),
		logger.Int64("student_id", created.StudentID),
		logger.Int64("evaluation_id", created.EvaluationID),
		logger.String("actor", actor),
	)
	return created, nil
}

// GetGrade returns a live grade, reading through the cache.
func (s *Service) GetGrade(ctx context.Context, id int64) (model.Grade, error) {
	g, err := s.getGrade(ctx, id)
	s.record("get", err)
	return g, err
}

func (s *Service) getGrade(ctx context.Context, id int64) (model.Grade, error) {
	if g, ok := s.cache.Get(ctx, id); ok {
		return g, nil
	}
	g, err := s.load(ctx, id)
	if err != nil {
		return model.Grade{}, err
	}
	s.cache.Set(ctx, g)
	return g, nil
}

// ListGrades pages through every live grade.
func (s *Service) ListGrades(ctx context.Context, page types.PageRequest) (types.Page[model.Grade], error) {
	p, err := s.list(ctx, repository.Query{}, page)
	s.record("list", err)
	return p, err
}

// ListStudentGrades pages through one student's grades.
func (s *Service) ListStudentGrades(ctx context.Context, studentID int64, page types.PageRequest) (types.Page[model.Grade], error) {
	p, err := s.list(ctx, repository.Query{StudentID: model.Int64Ptr(studentID)}, page)
	s.record("list_student", err)
	return p, err
}

// ListEvaluationGrades pages through one evaluation's grades.
func (s *Service) ListEvaluationGrades(ctx context.Context, evaluationID int64, page types.PageRequest) (types.Page[model.Grade], error) {
	p, err := s.list(ctx, repository.Query{EvaluationID: model.Int64Ptr(evaluationID)}, page)
	s.record("list_evaluation", err)
	return p, err
}

// ListUserGrades resolves the student behind a platform user and pages
// through that student's grades.
func (s *Service) ListUserGrades(ctx context.Context, userID int64, page types.PageRequest) (types.Page[model.Grade], error) {
	p, err := s.listUserGrades(ctx, userID, page)
	s.record("list_user", err)
	return p, err
}

func (s *Service) listUserGrades(ctx context.Context, userID int64, page types.PageRequest) (types.Page[model.Grade], error) {
	studentID, err := s.users.StudentIDForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, clients.ErrNoStudent) || errors.Is(err, clients.ErrNotFound) {
			return types.Page[model.Grade]{}, fmt.Errorf("user %d: %w", userID, ErrNoStudentForUser)
		}
		return types.Page[model.Grade]{}, upstream("auth", err)
	}
	return s.list(ctx, repository.Query{StudentID: model.Int64Ptr(studentID)}, page)
}

// UpdateGrade overwrites the mutable fields of a grade.
func (s *Service) UpdateGrade(ctx context.Context, id int64, in model.GradeInput, actor string) (model.Grade, error) { //nolint:gocritic // hugeParam: input is a value type
	g, err := s.updateGrade(ctx, id, in, actor)
	s.record("update", err)
	return g, err
}

func (s *Service) updateGrade(ctx context.Context, id int64, in model.GradeInput, actor string) (model.Grade, error) { //nolint:gocritic // hugeParam: input is a value type
	g, err := s.load(ctx, id)
	if err != nil {
		return model.Grade{}, err
	}
	if err := grading.Validate(in); err != nil {
		return model.Grade{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if g.ClassID == nil || *g.ClassID != in.ClassID {
		if err := s.checkEnrollment(ctx, in.ClassID, g.StudentID); err != nil {
			return model.Grade{}, err
		}
		g.ClassID = model.Int64Ptr(in.ClassID)
	}

	now := s.now()
	g.Value = in.Value
	g.GradeDate = in.GradeDate
	g.Notes = in.Notes
	if in.Status != "" && in.Status != g.Status {
		if in.Status == model.StatusConfirmed {
			g.Confirm(now)
		} else {
			g.Status = in.Status
		}
		metrics.RecordStatusChange(string(g.Status))
	}
	g.UpdatedBy = actor

	updated, err := s.store.Update(ctx, g)
	if err != nil {
		return model.Grade{}, fmt.Errorf("store grade %d: %w", id, err)
	}
	s.cache.Flush(ctx)
	s.publish(ctx, s.topics.GradeUpdated, &updated, model.GradeUpdatedEvent(&updated, now))

	s.logger.Info(ctx, "grade updated",
		logger.Int64("grade_id", updated.ID),
		logger.String("status", string(updated.Status)),
		logger.String("actor", actor),
	)
	return updated, nil
}

// DeleteGrade soft-deletes a grade.
func (s *Service) DeleteGrade(ctx context.Context, id int64, actor string) error {
	err := s.deleteGrade(ctx, id, actor)
	s.record("delete", err)
	return err
}

func (s *Service) deleteGrade(ctx context.Context, id int64, actor string) error {
	g, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	g.MarkDeleted(actor, now)
	g.UpdatedBy = actor
	if _, err := s.store.Update(ctx, g); err != nil {
		return fmt.Errorf("store grade %d: %w", id, err)
	}
	s.cache.Flush(ctx)
	s.publish(ctx, s.topics.GradeDeleted, &g, model.GradeDeletedEvent(&g, now))

	s.logger.Info(ctx, "grade deleted", logger.Int64("grade_id", id), logger.String("actor", actor))
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (model.Grade, error) {
	g, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Grade{}, fmt.Errorf("grade %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Grade{}, fmt.Errorf("load grade %d: %w", id, err)
	}
	return g, nil
}

func (s *Service) list(ctx context.Context, q repository.Query, page types.PageRequest) (types.Page[model.Grade], error) { //nolint:gocritic // hugeParam: query is a value type
	p, err := s.store.List(ctx, q, page)
	if errors.Is(err, repository.ErrInvalidSort) {
		return types.Page[model.Grade]{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err != nil {
		return types.Page[model.Grade]{}, fmt.Errorf("list grades: %w", err)
	}
	return p, nil
}

func (s *Service) checkStudent(ctx context.Context, id int64) error {
	err := s.students.GetStudent(ctx, id)
	if errors.Is(err, clients.ErrNotFound) {
		return fmt.Errorf("student %d: %w", id, ErrStudentNotFound)
	}
	if err != nil {
		return upstream("student", err)
	}
	return nil
}

func (s *Service) checkTeacher(ctx context.Context, id int64) error {
	err := s.teachers.GetTeacher(ctx, id)
	if errors.Is(err, clients.ErrNotFound) {
		return fmt.Errorf("teacher %d: %w", id, ErrTeacherNotFound)
	}
	if err != nil {
		return upstream("teacher", err)
	}
	return nil
}

// checkEnrollment requires the class to exist and, when it has a roster,
// to list the student.
func (s *Service) checkEnrollment(ctx context.Context, classID, studentID int64) error {
	info, err := s.class(ctx, classID)
	if err != nil {
		return err
	}
	if !info.HasStudent(studentID) {
		return fmt.Errorf("student %d, class %d: %w", studentID, classID, ErrStudentNotInClass)
	}
	return nil
}

func (s *Service) class(ctx context.Context, id int64) (model.ClassInfo, error) {
	info, err := s.classes.GetClass(ctx, id)
	if errors.Is(err, clients.ErrNotFound) {
		return model.ClassInfo{}, fmt.Errorf("class %d: %w", id, ErrClassNotFound)
	}
	if err != nil {
		return model.ClassInfo{}, upstream("class", err)
	}
	return info, nil
}

func upstream(service string, err error) error {
	return fmt.Errorf("%s service: %w: %w", service, ErrUpstream, err)
}
