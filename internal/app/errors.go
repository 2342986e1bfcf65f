package service

import "errors"

// Sentinel errors returned by the grade service. Callers match them with
// errors.Is; validation errors also carry a *grading.ValidationError.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("grade not found")
	ErrDuplicateGrade    = errors.New("a grade already exists for this student and evaluation")
	ErrClassNotFound     = errors.New("class not found")
	ErrStudentNotFound   = errors.New("student not found")
	ErrTeacherNotFound   = errors.New("teacher not found")
	ErrStudentNotInClass = errors.New("student is not enrolled in the class")
	ErrNoStudentForUser  = errors.New("no student linked to user")
	ErrUpstream          = errors.New("upstream service unavailable")
)
