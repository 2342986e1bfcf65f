package api

import (
	"net/http"

	"github.com/distrischool/grade-service/internal/domain/aggregation"
	"github.com/distrischool/grade-service/internal/domain/grading"
	"github.com/distrischool/grade-service/internal/domain/model"
)

// AggregatesHandler serves averages and class summaries.
type AggregatesHandler struct {
	deps       Dependencies
	classifier *grading.Classifier
	responder
}

// NewAggregatesHandler creates a new aggregates handler.
func NewAggregatesHandler(deps Dependencies, c *grading.Classifier, rsp responder) *AggregatesHandler {
	return &AggregatesHandler{deps: deps, classifier: c, responder: rsp}
}

// HandleStudentAverage handles GET /grades/student/{studentId}/average.
// Both academicYear and academicSemester are required.
func (h *AggregatesHandler) HandleStudentAverage(w http.ResponseWriter, r *http.Request) {
	const op = "api.student_average"
	id, err := pathID(r, "studentId")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	year, err := requiredInt(r, "academicYear")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	semester, err := requiredInt(r, "academicSemester")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	avg, err := h.deps.StudentAverage(r.Context(), id, year, semester)
	if err != nil {
		h.fail(w, r, classify(op, err))
		return
	}
	h.ok(w, r, http.StatusOK, fixed(avg), "average calculated")
}

// HandleClassSummary handles GET /grades/classes/{classId}/grades.
func (h *AggregatesHandler) HandleClassSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.class_summary"
	summary, ok := h.summary(w, r, op)
	if !ok {
		return
	}
	h.ok(w, r, http.StatusOK, toClassSummaryResponse(&summary, h.classifier), "class grades retrieved")
}

// HandleClassAverage handles GET /grades/classes/{classId}/average.
func (h *AggregatesHandler) HandleClassAverage(w http.ResponseWriter, r *http.Request) {
	const op = "api.class_average"
	id, p, limit, err := classQuery(r)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	avg, err := h.deps.ClassAverage(r.Context(), id, p, limit)
	if err != nil {
		h.fail(w, r, classify(op, err))
		return
	}
	h.ok(w, r, http.StatusOK, fixed(avg), "class average calculated")
}

// HandleGlobalAverage handles GET /grades/classes/average.
func (h *AggregatesHandler) HandleGlobalAverage(w http.ResponseWriter, r *http.Request) {
	const op = "api.global_average"
	p, err := period(r)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := maxGrades(r)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	avg, err := h.deps.GlobalAverage(r.Context(), p, limit)
	if err != nil {
		h.fail(w, r, classify(op, err))
		return
	}
	h.ok(w, r, http.StatusOK, fixed(avg), "global average calculated")
}

// summary loads a class summary, answering the request itself on failure.
func (h *AggregatesHandler) summary(w http.ResponseWriter, r *http.Request, op string) (aggregation.ClassSummary, bool) {
	id, p, limit, err := classQuery(r)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return aggregation.ClassSummary{}, false
	}
	summary, err := h.deps.ClassSummary(r.Context(), id, p, limit)
	if err != nil {
		h.fail(w, r, classify(op, err))
		return aggregation.ClassSummary{}, false
	}
	return summary, true
}

func classQuery(r *http.Request) (int64, model.Period, int, error) {
	id, err := pathID(r, "classId")
	if err != nil {
		return 0, model.Period{}, 0, err
	}
	p, err := period(r)
	if err != nil {
		return 0, model.Period{}, 0, err
	}
	limit, err := maxGrades(r)
	if err != nil {
		return 0, model.Period{}, 0, err
	}
	return id, p, limit, nil
}
