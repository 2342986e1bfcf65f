package clients

import "errors"

// Sentinel kinds for collaborator errors.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrUnavailable = errors.New("service unavailable")
	ErrNoStudent   = errors.New("user has no student id")
)
