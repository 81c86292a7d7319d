package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks a backend source that could not be fetched.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedPayload marks a response that exists but fails shape validation.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrAllSourcesFailed is returned when every source of a refresh cycle failed.
	ErrAllSourcesFailed = errors.New("all analytics sources failed")
)

// AllSourcesFailedMessage is the user-facing text shown when a cycle yields nothing.
const AllSourcesFailedMessage = "Failed to load analytics data. Please check your connection and try again."

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// Malformed wraps ErrMalformedPayload with a reason.
func Malformed(op, reason string) error {
	return &AppError{Op: op, Msg: reason, Err: ErrMalformedPayload}
}

// Unavailable wraps ErrSourceUnavailable around the transport or status failure.
func Unavailable(op string, err error) error {
	return &AppError{Op: op, Msg: "request failed", Err: errors.Join(ErrSourceUnavailable, err)}
}
