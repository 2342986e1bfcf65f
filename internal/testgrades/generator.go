package testgrades

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/distrischool/grade-service/internal/adapters/clients"
	"github.com/distrischool/grade-service/internal/auth"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/shopspring/decimal"
)

// classPlan is one class of the run and the students that get grades.
type classPlan struct {
	info     model.ClassInfo
	students []int64
}

// ids derives every identifier of a run from its base.
type ids struct {
	base             int64
	studentsPerClass int
	gradesPerStudent int
}

func (i ids) class(c int) int64 { return i.base + int64(c) + 1 }

func (i ids) teacher() int64 { return i.base + teacherIDOffset }

func (i ids) student(c, s int) int64 {
	return i.base + studentIDOffset + int64(c*i.studentsPerClass+s)
}

func (i ids) evaluation(c, k int) int64 {
	return i.base + evaluationOffset + int64(c*i.gradesPerStudent+k)
}

// idBase picks a fresh base when none was configured.
func idBase(cfg *Config) int64 {
	if cfg.IDBase > 0 {
		return cfg.IDBase
	}
	return (time.Now().Unix()%1000 + 1) * idBaseStride
}

// planClasses lays out the classes of a run. With class ids and a class
// service, real rosters are graded; otherwise synthetic classes are used.
func planClasses(ctx context.Context, cfg *Config, layout ids) ([]classPlan, error) {
	if len(cfg.ClassIDs) == 0 {
		plans := make([]classPlan, cfg.Classes)
		for c := range plans {
			students := make([]int64, cfg.StudentsPerClass)
			for s := range students {
				students[s] = layout.student(c, s)
			}
			plans[c] = classPlan{info: model.ClassInfo{ID: layout.class(c)}, students: students}
		}
		return plans, nil
	}

	cc := clients.NewClassClient(cfg.ClassServiceURL, clients.WithTimeout(cfg.Timeout))
	ctx = auth.WithToken(ctx, cfg.Token)
	plans := make([]classPlan, 0, len(cfg.ClassIDs))
	for _, id := range cfg.ClassIDs {
		info, err := cc.GetClass(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read roster of class %d: %w", id, err)
		}
		if len(info.StudentIDs) == 0 {
			logger.Get().Warn(ctx, "class has an empty roster; skipped", logger.Int64("classId", id))
			continue
		}
		plans = append(plans, classPlan{info: info, students: info.StudentIDs})
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("none of %d classes has a roster", len(cfg.ClassIDs))
	}
	return plans, nil
}

// generateGrades builds GradesPerStudent grades for every planned student.
// Evaluation k of a class is dated k days into the term, so the most recent
// grades are always the ones with the highest k.
func generateGrades(ctx context.Context, cfg *Config, plans []classPlan, layout ids, rng *rand.Rand, runID string, stats *Stats) []GradeRequest {
	total := 0
	for _, p := range plans {
		total += len(p.students) * cfg.GradesPerStudent
	}
	logger.Get().Info(ctx, "generating grades",
		logger.Int("classes", len(plans)),
		logger.Int("gradesPerStudent", cfg.GradesPerStudent),
		logger.Int("total", total))

	termStart := time.Date(cfg.AcademicYear, time.February, 1, 0, 0, 0, 0, time.UTC)
	if cfg.AcademicSemester == 2 {
		termStart = time.Date(cfg.AcademicYear, time.August, 1, 0, 0, 0, 0, time.UTC)
	}

	grades := make([]GradeRequest, 0, total)
	for c, p := range plans {
		for _, student := range p.students {
			for k := 0; k < cfg.GradesPerStudent; k++ {
				grades = append(grades, GradeRequest{
					StudentID:        student,
					TeacherID:        layout.teacher(),
					ClassID:          p.info.ID,
					EvaluationID:     layout.evaluation(c, k),
					GradeValue:       randomGrade(rng),
					GradeDate:        termStart.AddDate(0, 0, k).Format(dateLayout),
					Notes:            defaultGradeNotes + " " + runID,
					Status:           "CONFIRMED",
					AcademicYear:     cfg.AcademicYear,
					AcademicSemester: cfg.AcademicSemester,
				})
			}
		}
	}

	stats.GradesGenerated = len(grades)
	return grades
}

// randomGrade returns a value in [0, 10] with one fractional digit.
func randomGrade(rng *rand.Rand) decimal.Decimal {
	return decimal.New(int64(rng.IntN(maxGradeTenths+1)), -1)
}
