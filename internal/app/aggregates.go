package service

import (
	"context"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/repository"
	"github.com/distrischool/grade-service/internal/domain/aggregation"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// StudentAverage averages a student's confirmed grades for one term.
// A student without confirmed grades averages 0.00.
func (s *Service) StudentAverage(ctx context.Context, studentID int64, year, semester int) (decimal.Decimal, error) {
	avg, err := s.studentAverage(ctx, studentID, year, semester)
	s.record("student_average", err)
	return avg, err
}

func (s *Service) studentAverage(ctx context.Context, studentID int64, year, semester int) (decimal.Decimal, error) {
	defer observe("student", time.Now())
	grades, err := s.store.Find(ctx, repository.Query{
		StudentID:        model.Int64Ptr(studentID),
		AcademicYear:     model.IntPtr(year),
		AcademicSemester: model.IntPtr(semester),
		Status:           model.StatusConfirmed,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	if avg := aggregation.Average(grades); avg.Valid {
		return avg.Decimal, nil
	}
	return decimal.Zero.Round(aggregation.Scale), nil
}

// ClassSummary builds the per-student breakdown of a class. The roster and
// the grades are fetched concurrently.
func (s *Service) ClassSummary(ctx context.Context, classID int64, period model.Period, maxGradesPerStudent int) (aggregation.ClassSummary, error) {
	summary, err := s.classSummary(ctx, classID, period, maxGradesPerStudent)
	s.record("class_summary", err)
	return summary, err
}

func (s *Service) classSummary(ctx context.Context, classID int64, period model.Period, maxGradesPerStudent int) (aggregation.ClassSummary, error) {
	defer observe("class", time.Now())

	var (
		info   model.ClassInfo
		grades []model.Grade
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.class(gctx, classID)
		return err
	})
	g.Go(func() error {
		var err error
		grades, err = s.store.Find(gctx, repository.Query{
			ClassID:          model.Int64Ptr(classID),
			AcademicYear:     period.AcademicYear,
			AcademicSemester: period.AcademicSemester,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return aggregation.ClassSummary{}, err
	}

	summary := aggregation.BuildClassSummary(info, grades, maxGradesPerStudent)
	if len(summary.UnrosteredStudentIDs) > 0 {
		s.logger.Warn(ctx, "graded students missing from class roster",
			logger.Int64("class_id", classID),
			logger.Any("student_ids", summary.UnrosteredStudentIDs),
		)
	}
	return summary, nil
}

// ClassAverage is the class average of ClassSummary.
func (s *Service) ClassAverage(ctx context.Context, classID int64, period model.Period, maxGradesPerStudent int) (decimal.Decimal, error) {
	summary, err := s.classSummary(ctx, classID, period, maxGradesPerStudent)
	s.record("class_average", err)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return summary.ClassAverage, nil
}

// GlobalAverage averages every student across every class.
func (s *Service) GlobalAverage(ctx context.Context, period model.Period, maxGradesPerStudent int) (decimal.Decimal, error) {
	avg, err := s.globalAverage(ctx, period, maxGradesPerStudent)
	s.record("global_average", err)
	return avg, err
}

func (s *Service) globalAverage(ctx context.Context, period model.Period, maxGradesPerStudent int) (decimal.Decimal, error) {
	defer observe("global", time.Now())
	grades, err := s.store.Find(ctx, repository.Query{
		HasClass:         true,
		AcademicYear:     period.AcademicYear,
		AcademicSemester: period.AcademicSemester,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return aggregation.GlobalAverage(grades, maxGradesPerStudent), nil
}

func observe(kind string, start time.Time) {
	metrics.RecordAggregation(kind, float64(time.Since(start).Microseconds())/1000)
}
