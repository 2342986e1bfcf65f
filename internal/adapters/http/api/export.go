package api

import (
	"fmt"
	"net/http"

	"github.com/distrischool/grade-service/internal/domain/aggregation"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	summarySheet    = "Summary"
	gradesSheet     = "Grades"
)

// HandleClassExport handles GET /grades/classes/{classId}/grades/export and
// returns the class summary as a workbook.
func (h *AggregatesHandler) HandleClassExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.class_export"
	summary, ok := h.summary(w, r, op)
	if !ok {
		return
	}
	f, err := h.workbook(&summary)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%s: build workbook: %w", op, err))
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="class-%d-grades.xlsx"`, summary.ClassID))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		h.logger.Warn(r.Context(), "failed to stream workbook", logger.Error(err))
	}
}

// workbook lays the summary out on two sheets: one row per student, and one
// row per selected grade.
func (h *AggregatesHandler) workbook(s *aggregation.ClassSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(gradesSheet); err != nil {
		return nil, err
	}
	numeric, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, err
	}

	header := []any{"Student ID", "On Roster", "Average", "Standing", "Grades"}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, st := range s.Students {
		row := i + 2
		var avg any = ""
		if st.Average.Valid {
			avg = st.Average.Decimal.InexactFloat64()
		}
		values := []any{st.StudentID, st.OnRoster, avg, string(h.classifier.ClassifyAverage(st.Average)), len(st.Grades)}
		if err := f.SetSheetRow(summarySheet, cell("A", row), &values); err != nil {
			return nil, err
		}
	}
	footer := len(s.Students) + 3
	totals := []any{"Class Average", "", s.ClassAverage.InexactFloat64()}
	if err := f.SetSheetRow(summarySheet, cell("A", footer), &totals); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(summarySheet, "C2", cell("C", footer), numeric); err != nil {
		return nil, err
	}

	header = []any{"Student ID", "Grade ID", "Evaluation ID", "Value", "Date", "Year", "Semester"}
	if err := f.SetSheetRow(gradesSheet, "A1", &header); err != nil {
		return nil, err
	}
	row := 2
	for _, st := range s.Students {
		for _, g := range st.Grades {
			var value, date any = "", ""
			if g.Value != nil {
				value = g.Value.InexactFloat64()
			}
			if g.GradeDate != nil {
				date = g.GradeDate.Format(dateLayout)
			}
			values := []any{st.StudentID, g.GradeID, g.EvaluationID, value, date, g.AcademicYear, g.AcademicSemester}
			if err := f.SetSheetRow(gradesSheet, cell("A", row), &values); err != nil {
				return nil, err
			}
			row++
		}
	}
	if row > 2 {
		if err := f.SetCellStyle(gradesSheet, "D2", cell("D", row-1), numeric); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
