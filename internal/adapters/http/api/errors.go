package api

import (
	"errors"
	"net/http"

	service "github.com/distrischool/grade-service/internal/app"
	"github.com/distrischool/grade-service/internal/auth"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
)

// kindError tags a cause with an API kind and the operation that failed.
// errors.Is matches both the kind and anything in the cause chain.
type kindError struct {
	op    string
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.op + ": " + e.kind.Error()
	}
	return e.op + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// WrapKind tags err with kind.
func WrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, cause: err}
}

// NewKind returns a bare error of kind.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind}
}

// classify maps service and auth errors to an API kind.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return WrapKind(op, ErrNotFound, err)
	case errors.Is(err, service.ErrDuplicateGrade):
		return WrapKind(op, ErrConflict, err)
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrClassNotFound),
		errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, service.ErrTeacherNotFound),
		errors.Is(err, service.ErrStudentNotInClass),
		errors.Is(err, service.ErrNoStudentForUser):
		return WrapKind(op, ErrBadRequest, err)
	case errors.Is(err, service.ErrUpstream):
		return WrapKind(op, ErrUpstream, err)
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return WrapKind(op, ErrUnauthorized, err)
	}
	return err
}

// statusFor returns the HTTP status and error code of a classified error.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
