package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound         = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden        = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized     = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict         = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrDecode           = New("DECODE_ERROR", http.StatusBadRequest, "malformed structured input")
	ErrUpstream         = New("REQUEST_FAILED", http.StatusBadGateway, "request failed")
	ErrInternal         = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrRoleNotPermitted = New("ROLE_NOT_PERMITTED", http.StatusForbidden, "role not permitted to access the admin console")
	ErrSessionNotFound  = New("SESSION_NOT_FOUND", http.StatusUnauthorized, "session not found")
	ErrImportInProgress = New("IMPORT_IN_PROGRESS", http.StatusConflict, "an import is already in progress")
	ErrNothingStaged    = New("NOTHING_STAGED", http.StatusPreconditionFailed, "no parsed records awaiting confirmation")
	ErrUnknownResource  = New("UNKNOWN_RESOURCE", http.StatusNotFound, "unknown resource type")
)

// Upstream builds a request failure carrying the backend status and message.
func Upstream(status int, message string) *Error {
	if message == "" {
		message = ErrUpstream.Message
	}
	if status == 0 {
		status = ErrUpstream.Status
	}
	return &Error{Code: ErrUpstream.Code, Status: status, Message: message}
}

// Is matches errors sharing the same code so clones compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
