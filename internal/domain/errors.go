package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling (OCP compliance).
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates authorization failure
	ForbiddenError struct {
		Message string
	}
)

// Error implementations
func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Turn pipeline sentinel errors. The chat turn endpoint maps these to the
// fixed plain-text codes the client switches on (see ClientCode).
var (
	ErrInvalidModel       = errors.New("invalid model")
	ErrOutOfMessages      = errors.New("out of available messages")
	ErrConversationLocked = errors.New("conversation locked")
	ErrFileTooLarge       = errors.New("file too large")
	ErrContentFilter      = errors.New("content filtered by provider")
)

// ClientCode returns the fixed string code for a turn pipeline error and the
// HTTP status to send it with. The codes are a wire contract with the client
// and must not be reworded.
func ClientCode(err error) (string, int, bool) {
	switch {
	case errors.Is(err, ErrInvalidModel):
		return "Invalid model", http.StatusBadRequest, true
	case errors.Is(err, ErrOutOfMessages):
		return "Out of available messages", http.StatusForbidden, true
	case errors.Is(err, ErrConversationLocked):
		return "conversation_locked", http.StatusConflict, true
	case errors.Is(err, ErrFileTooLarge):
		return "file_too_large", http.StatusRequestEntityTooLarge, true
	case errors.Is(err, ErrContentFilter):
		return "content_filter", http.StatusBadRequest, true
	}
	return "", 0, false
}

// ConflictError represents a resource conflict with details about the existing resource
// Implements HTTPError interface for extensible error handling
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // Type of resource (conversation, message, user)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Is allows errors.Is() to match against ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
