package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("grade not found")
	ErrInvalidSort   = errors.New("invalid sort field")
	ErrInvalidDriver = errors.New("unsupported database driver")
)
