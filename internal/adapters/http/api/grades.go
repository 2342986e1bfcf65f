package api

import (
	"encoding/json"
	"net/http"

	"github.com/distrischool/grade-service/internal/auth"
	"github.com/distrischool/grade-service/internal/domain/grading"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
)

const maxBodyBytes = 1 << 20

// GradesHandler handles grade CRUD and listing requests.
type GradesHandler struct {
	deps       Dependencies
	classifier *grading.Classifier
	pages      pageLimits
	responder
}

// NewGradesHandler creates a new grades handler.
func NewGradesHandler(deps Dependencies, c *grading.Classifier, pages pageLimits, rsp responder) *GradesHandler {
	return &GradesHandler{deps: deps, classifier: c, pages: pages, responder: rsp}
}

// HandleCreate handles POST /grades.
func (h *GradesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_grade"
	in, err := decodeGrade(w, r)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	g, err := h.deps.CreateGrade(r.Context(), in, auth.Actor(r))
	if err != nil {
		h.fail(w, r, classify(op, err))
		return
	}
	h.ok(w, r, http.StatusCreated, toGradeResponse(g, h.classifier), "grade created")
}

// HandleGet handles GET /grades/{id}.
func (h *GradesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_grade"
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	g, err := h.deps.GetGrade(r.Context(), id)
	if err != nil {
		h.fail(w, r, classify(op, err))
		return
	}
	h.ok(w, r, http.StatusOK, toGradeResponse(g, h.classifier), "")
}

// HandleList handles GET /grades.
func (h *GradesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_grades"
	page, err := pageRequest(r, h.pages)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	h.page(w, r, op)(h.deps.ListGrades(r.Context(), page))
}

// HandleListByStudent handles GET /grades/student/{studentId}.
func (h *GradesHandler) HandleListByStudent(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_student_grades"
	id, page, err := h.scoped(r, "studentId")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	h.page(w, r, op)(h.deps.ListStudentGrades(r.Context(), id, page))
}

// HandleListByEvaluation handles GET /grades/evaluation/{evaluationId}.
func (h *GradesHandler) HandleListByEvaluation(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_evaluation_grades"
	id, page, err := h.scoped(r, "evaluationId")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	h.page(w, r, op)(h.deps.ListEvaluationGrades(r.Context(), id, page))
}

// HandleListByUser handles GET /grades/user/{userId}.
func (h *GradesHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_user_grades"
	id, page, err := h.scoped(r, "userId")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	h.page(w, r, op)(h.deps.ListUserGrades(r.Context(), id, page))
}

// HandleUpdate handles PUT /grades/{id}.
func (h *GradesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_grade"
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	in, err := decodeGrade(w, r)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	g, err := h.deps.UpdateGrade(r.Context(), id, in, auth.Actor(r))
	if err != nil {
		h.fail(w, r, classify(op, err))
		return
	}
	h.ok(w, r, http.StatusOK, toGradeResponse(g, h.classifier), "grade updated")
}

// HandleDelete handles DELETE /grades/{id}.
func (h *GradesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_grade"
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.DeleteGrade(r.Context(), id, auth.Actor(r)); err != nil {
		h.fail(w, r, classify(op, err))
		return
	}
	h.ok(w, r, http.StatusOK, nil, "grade deleted")
}

func (h *GradesHandler) scoped(r *http.Request, param string) (int64, types.PageRequest, error) {
	id, err := pathID(r, param)
	if err != nil {
		return 0, types.PageRequest{}, err
	}
	page, err := pageRequest(r, h.pages)
	if err != nil {
		return 0, types.PageRequest{}, err
	}
	return id, page, nil
}

// page returns a writer for a listing result.
func (h *GradesHandler) page(w http.ResponseWriter, r *http.Request, op string) func(types.Page[model.Grade], error) {
	return func(p types.Page[model.Grade], err error) {
		if err != nil {
			h.fail(w, r, classify(op, err))
			return
		}
		h.ok(w, r, http.StatusOK, types.MapPage(p, func(g model.Grade) gradeResponse {
			return toGradeResponse(g, h.classifier)
		}), "")
	}
}

func decodeGrade(w http.ResponseWriter, r *http.Request) (model.GradeInput, error) {
	var req gradeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return model.GradeInput{}, err
	}
	return req.toInput()
}
