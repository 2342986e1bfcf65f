package testgrades

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/distrischool/grade-service/internal/domain/aggregation"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Expected is the locally computed outcome for one class.
type Expected struct {
	ClassID            int64
	TotalStudents      int
	StudentsWithGrades int
	Average            decimal.Decimal
}

// expectedAverages recomputes every class summary from the accepted grades.
// Classes with no accepted grade are left out.
func expectedAverages(plans []classPlan, accepted []Submitted, limit int) []Expected {
	byClass := make(map[int64][]model.Grade)
	for i := range accepted {
		g := toModel(&accepted[i])
		byClass[*g.ClassID] = append(byClass[*g.ClassID], g)
	}
	rosters := make(map[int64]model.ClassInfo, len(plans))
	for _, p := range plans {
		rosters[p.info.ID] = p.info
	}

	out := make([]Expected, 0, len(byClass))
	for id, grades := range byClass {
		info, ok := rosters[id]
		if !ok {
			info = model.ClassInfo{ID: id}
		}
		s := aggregation.BuildClassSummary(info, grades, limit)
		out = append(out, Expected{
			ClassID:            id,
			TotalStudents:      s.TotalStudents,
			StudentsWithGrades: s.StudentsWithGrades,
			Average:            s.ClassAverage,
		})
	}
	slices.SortFunc(out, func(a, b Expected) int {
		switch {
		case a.ClassID < b.ClassID:
			return -1
		case a.ClassID > b.ClassID:
			return 1
		}
		return 0
	})
	return out
}

func toModel(s *Submitted) model.Grade {
	v := s.GradeValue
	g := model.Grade{
		ID:               s.ID,
		StudentID:        s.StudentID,
		TeacherID:        s.TeacherID,
		ClassID:          model.Int64Ptr(s.ClassID),
		EvaluationID:     s.EvaluationID,
		Value:            &v,
		AcademicYear:     s.AcademicYear,
		AcademicSemester: s.AcademicSemester,
	}
	if d, err := time.Parse(dateLayout, s.GradeDate); err == nil {
		g.GradeDate = &d
	}
	return g
}

// verifyResults compares the service's class averages with the local ones.
// A mismatch on any class fails the run.
func verifyResults(ctx context.Context, cfg *Config, expected []Expected, stats *Stats) error {
	log.Println("Verifying class averages...")
	client := newHTTPClient(cfg)

	var mismatches []string
	for _, e := range expected {
		var got json.Number
		if err := client.GetData(ctx, classPath(e.ClassID, "/average", cfg), &got); err != nil {
			return fmt.Errorf("class %d average: %w", e.ClassID, err)
		}
		avg, err := decimal.NewFromString(got.String())
		if err != nil {
			return fmt.Errorf("class %d average %q: %w", e.ClassID, got, err)
		}

		var summary struct {
			StudentsWithGrades int `json:"studentsWithGrades"`
		}
		if err := client.GetData(ctx, classPath(e.ClassID, "/grades", cfg), &summary); err != nil {
			return fmt.Errorf("class %d summary: %w", e.ClassID, err)
		}

		stats.ClassesVerified++
		if !avg.Equal(e.Average) || summary.StudentsWithGrades != e.StudentsWithGrades {
			stats.ClassesMismatch++
			mismatches = append(mismatches, fmt.Sprintf("class %d: average %s want %s, graded students %d want %d",
				e.ClassID, avg.StringFixed(aggregation.Scale), e.Average.StringFixed(aggregation.Scale),
				summary.StudentsWithGrades, e.StudentsWithGrades))
			continue
		}
		if cfg.Verbose {
			log.Printf("   class %d: average %s (%d students)", e.ClassID, avg.StringFixed(aggregation.Scale), e.StudentsWithGrades)
		}
	}

	if len(mismatches) > 0 {
		for _, m := range mismatches {
			log.Printf("   mismatch %s", m)
		}
		return fmt.Errorf("%d of %d classes disagree", len(mismatches), len(expected))
	}
	log.Printf("All %d class averages verified", len(expected))
	return nil
}

// verifyExport downloads one class workbook and checks it lists every
// student of the class.
func verifyExport(ctx context.Context, cfg *Config, e Expected) error {
	client := newHTTPClient(cfg)
	status, raw, err := client.Do(ctx, http.MethodGet, classPath(e.ClassID, "/grades/export", cfg), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("export class %d: status %d", e.ClassID, status)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("export class %d: %w", e.ClassID, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Summary")
	if err != nil {
		return fmt.Errorf("export class %d: %w", e.ClassID, err)
	}
	// header, one row per student, a blank row and the class average
	if want := e.TotalStudents + 3; len(rows) != want {
		return fmt.Errorf("export class %d: %d summary rows, want %d", e.ClassID, len(rows), want)
	}
	return nil
}
