package sidecar

import (
	"errors"
	"fmt"
)

// Error codes for worker lifecycle operations.
const (
	ErrCodeDirectoryCreationFailed = "DIRECTORY_CREATION_FAILED"
	ErrCodeSpawnFailed             = "SPAWN_FAILED"
	ErrCodeTimedOutStarting        = "TIMED_OUT_STARTING"
	ErrCodeExitedUnexpectedly      = "EXITED_UNEXPECTEDLY"
	ErrCodeTerminationFailed       = "TERMINATION_FAILED"
)

// Error represents a lifecycle error with a code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is a lifecycle error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
