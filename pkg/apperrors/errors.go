package apperrors

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUnreadableFile = errors.New("unreadable file")
	ErrCircuitOpen    = errors.New("circuit breaker open")
)
