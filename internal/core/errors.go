package core

import (
	"errors"
	"time"
)

// Error codes for domain errors.
const (
	ErrCodeInvalidRoomSpec = "invalid_room_spec"
	ErrCodeRoomNotFound    = "room_not_found"
	ErrCodeMessageNotFound = "message_not_found"
	ErrCodeEmptyMessage    = "empty_message"
	ErrCodeSlowMode        = "slow_mode_active"
	ErrCodeForbidden       = "forbidden"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeKindNotAllowed  = "kind_not_allowed"
)

// Error wraps a code, a human-readable message and an optional retry hint.
// SlowMode and RateLimited carry RetryAfter so callers can back off instead
// of hammering the room lock.
type Error struct {
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return e.Message
}

func coreError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func retryError(code, msg string, after time.Duration) *Error {
	return &Error{Code: code, Message: msg, RetryAfter: after}
}

// ErrorCode extracts the domain error code, or "" for non-domain errors.
func ErrorCode(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}
