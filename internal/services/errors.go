package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// Common service errors
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrExamNotFound     = errors.New("exam not found")
	ErrAnswerNotFound   = errors.New("answer not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrStudentNotLinked = errors.New("student is not linked to a user")
	ErrUserMismatch     = errors.New("user mismatch")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("authentication required")
)

type ValidationError = validator.ValidationError
type ValidationErrors = validator.ValidationErrors

// NewValidationError reports a single invalid field as ValidationErrors.
func NewValidationError(field, message string, value interface{}) error {
	return ValidationErrors{{
		Field:   field,
		Message: message,
		Value:   value,
	}}
}

// GateBlockedError is returned when the retake window rejects a submission.
type GateBlockedError struct {
	Section           string
	Rule              string
	Reason            string
	RetryAfterMinutes int
}

func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("%s blocked by %s, retry after %d minutes", e.Section, e.Rule, e.RetryAfterMinutes)
}

// UpstreamError wraps a failed identity or data store call.
type UpstreamError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError marks deadline errors as timeouts.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{
		Op:      op,
		Err:     err,
		Timeout: errors.Is(err, context.DeadlineExceeded),
	}
}

// PersistenceError means the attempt or its items could not be stored.
type PersistenceError struct {
	Section string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s attempt: %v", e.Section, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}
