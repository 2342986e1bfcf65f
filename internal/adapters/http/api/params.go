package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/distrischool/grade-service/internal/domain/aggregation"
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
	"github.com/go-chi/chi/v5"
)

var errMissingParam = errors.New("missing parameter")

type pageLimits struct {
	defaultSize int
	maxSize     int
}

// pathID reads a positive id from the route.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil //nolint:nilnil // absent parameter
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &v, nil
}

// requiredInt reads a mandatory integer query parameter.
func requiredInt(r *http.Request, name string) (int, error) {
	v, err := queryInt(r, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("%w: %s", errMissingParam, name)
	}
	return *v, nil
}

// pageRequest reads page, size, sortBy and direction. Sizes outside
// [1, max] fall back to the default or the maximum.
func pageRequest(r *http.Request, limits pageLimits) (types.PageRequest, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return types.PageRequest{}, err
	}
	size, err := queryInt(r, "size")
	if err != nil {
		return types.PageRequest{}, err
	}
	q := r.URL.Query()
	req := types.PageRequest{
		Size:      limits.defaultSize,
		SortBy:    strings.TrimSpace(q.Get("sortBy")),
		Direction: types.ParseDirection(q.Get("direction")),
	}
	if page != nil && *page > 0 {
		req.Page = *page
	}
	if size != nil && *size > 0 {
		req.Size = min(*size, limits.maxSize)
	}
	return req, nil
}

// period reads the optional academicYear and academicSemester filters.
func period(r *http.Request) (model.Period, error) {
	year, err := queryInt(r, "academicYear")
	if err != nil {
		return model.Period{}, err
	}
	semester, err := queryInt(r, "academicSemester")
	if err != nil {
		return model.Period{}, err
	}
	return model.Period{AcademicYear: year, AcademicSemester: semester}, nil
}

// maxGrades reads maxGradesPerStudent; the aggregation clamps it.
func maxGrades(r *http.Request) (int, error) {
	v, err := queryInt(r, "maxGradesPerStudent")
	if err != nil {
		return 0, err
	}
	if v == nil {
		return aggregation.DefaultGradesPerStudent, nil
	}
	return *v, nil
}
