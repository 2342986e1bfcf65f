package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/distrischool/grade-service/internal/domain/aggregation"
	"github.com/distrischool/grade-service/internal/domain/grading"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// gradeRequest is the body of POST and PUT /grades.
type gradeRequest struct {
	StudentID        int64            `json:"studentId"`
	TeacherID        int64            `json:"teacherId"`
	ClassID          int64            `json:"classId"`
	EvaluationID     int64            `json:"evaluationId"`
	GradeValue       *decimal.Decimal `json:"gradeValue"`
	GradeDate        string           `json:"gradeDate"`
	Notes            string           `json:"notes"`
	Status           string           `json:"status"`
	IsAutomatic      *bool            `json:"isAutomatic"`
	AcademicYear     int              `json:"academicYear"`
	AcademicSemester int              `json:"academicSemester"`
}

// toInput converts the request. Only a malformed date fails here; the
// remaining rules are enforced by the service.
func (g *gradeRequest) toInput() (model.GradeInput, error) {
	in := model.GradeInput{
		StudentID:        g.StudentID,
		TeacherID:        g.TeacherID,
		ClassID:          g.ClassID,
		EvaluationID:     g.EvaluationID,
		Value:            g.GradeValue,
		Notes:            g.Notes,
		IsAutomatic:      g.IsAutomatic,
		AcademicYear:     g.AcademicYear,
		AcademicSemester: g.AcademicSemester,
	}
	if s := strings.TrimSpace(g.GradeDate); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return model.GradeInput{}, fmt.Errorf("gradeDate must be formatted as %s", dateLayout)
		}
		in.GradeDate = &d
	}
	if g.Status != "" {
		st, ok := model.ParseStatus(g.Status)
		if !ok {
			st = model.Status(strings.ToUpper(g.Status))
		}
		in.Status = st
	}
	return in, nil
}

// gradeResponse is the read shape of a grade.
type gradeResponse struct {
	ID               int64        `json:"id"`
	StudentID        int64        `json:"studentId"`
	TeacherID        int64        `json:"teacherId"`
	ClassID          *int64       `json:"classId"`
	EvaluationID     int64        `json:"evaluationId"`
	GradeValue       *json.Number `json:"gradeValue"`
	GradeDate        *string      `json:"gradeDate"`
	Notes            string       `json:"notes,omitempty"`
	Status           model.Status `json:"status"`
	Standing         string       `json:"standing"`
	IsAutomatic      bool         `json:"isAutomatic"`
	PostedAt         *time.Time   `json:"postedAt"`
	AcademicYear     int          `json:"academicYear"`
	AcademicSemester int          `json:"academicSemester"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
	CreatedBy        string       `json:"createdBy,omitempty"`
	UpdatedBy        string       `json:"updatedBy,omitempty"`
}

func toGradeResponse(g model.Grade, c *grading.Classifier) gradeResponse { //nolint:gocritic // hugeParam: used with types.MapPage
	return gradeResponse{
		ID:               g.ID,
		StudentID:        g.StudentID,
		TeacherID:        g.TeacherID,
		ClassID:          g.ClassID,
		EvaluationID:     g.EvaluationID,
		GradeValue:       fixedPtr(g.Value),
		GradeDate:        datePtr(g.GradeDate),
		Notes:            g.Notes,
		Status:           g.Status,
		Standing:         string(c.Classify(g.Value)),
		IsAutomatic:      g.IsAutomatic,
		PostedAt:         g.PostedAt,
		AcademicYear:     g.AcademicYear,
		AcademicSemester: g.AcademicSemester,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
		CreatedBy:        g.CreatedBy,
		UpdatedBy:        g.UpdatedBy,
	}
}

type snapshotResponse struct {
	GradeID          int64        `json:"gradeId"`
	EvaluationID     int64        `json:"evaluationId"`
	GradeValue       *json.Number `json:"gradeValue"`
	GradeDate        *string      `json:"gradeDate"`
	AcademicYear     int          `json:"academicYear"`
	AcademicSemester int          `json:"academicSemester"`
}

type studentSummaryResponse struct {
	StudentID int64              `json:"studentId"`
	OnRoster  bool               `json:"onRoster"`
	Average   *json.Number       `json:"average"`
	Standing  string             `json:"standing"`
	Grades    []snapshotResponse `json:"grades"`
}

type classSummaryResponse struct {
	ClassID              int64                    `json:"classId"`
	ClassName            string                   `json:"className"`
	ClassCode            string                   `json:"classCode"`
	Period               string                   `json:"period"`
	AcademicYear         string                   `json:"academicYear"`
	TotalStudents        int                      `json:"totalStudents"`
	StudentsWithGrades   int                      `json:"studentsWithGrades"`
	MaxGradesPerStudent  int                      `json:"maxGradesPerStudent"`
	ClassAverage         json.Number              `json:"classAverage"`
	Students             []studentSummaryResponse `json:"students"`
	UnrosteredStudentIDs []int64                  `json:"unrosteredStudentIds"`
}

func toClassSummaryResponse(s *aggregation.ClassSummary, c *grading.Classifier) classSummaryResponse {
	students := make([]studentSummaryResponse, len(s.Students))
	for i, st := range s.Students {
		grades := make([]snapshotResponse, len(st.Grades))
		for j, g := range st.Grades {
			grades[j] = snapshotResponse{
				GradeID:          g.GradeID,
				EvaluationID:     g.EvaluationID,
				GradeValue:       fixedPtr(g.Value),
				GradeDate:        datePtr(g.GradeDate),
				AcademicYear:     g.AcademicYear,
				AcademicSemester: g.AcademicSemester,
			}
		}
		students[i] = studentSummaryResponse{
			StudentID: st.StudentID,
			OnRoster:  st.OnRoster,
			Average:   nullFixed(st.Average),
			Standing:  string(c.ClassifyAverage(st.Average)),
			Grades:    grades,
		}
	}
	unrostered := s.UnrosteredStudentIDs
	if unrostered == nil {
		unrostered = []int64{}
	}
	return classSummaryResponse{
		ClassID:              s.ClassID,
		ClassName:            s.ClassName,
		ClassCode:            s.ClassCode,
		Period:               s.Period,
		AcademicYear:         s.AcademicYear,
		TotalStudents:        s.TotalStudents,
		StudentsWithGrades:   s.StudentsWithGrades,
		MaxGradesPerStudent:  s.MaxGradesPerStudent,
		ClassAverage:         fixed(s.ClassAverage),
		Students:             students,
		UnrosteredStudentIDs: unrostered,
	}
}

// fixed renders d as a JSON number with two fractional digits.
func fixed(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(aggregation.Scale))
}

func fixedPtr(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := fixed(*d)
	return &n
}

func nullFixed(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	return fixedPtr(&d.Decimal)
}

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
