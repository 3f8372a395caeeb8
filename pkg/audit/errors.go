package audit

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Typed errors below wrap them so callers can use errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrCircuitOpen         = errors.New("circuit breaker open")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrJobCancelled        = errors.New("job cancelled")
	ErrInvalidRequest      = errors.New("invalid request")
)

// NotFoundError reports an unknown job, document, rule set or rule id.
type NotFoundError struct {
	Kind string // "job", "document", "rule_set", "rule"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// CircuitOpenError is returned when the execution gate rejects a submission.
// It is retryable after RetryAfter.
type CircuitOpenError struct {
	TaskID     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open, task %q rejected (retry after %s)", e.TaskID, e.RetryAfter)
}

// Unwrap returns ErrCircuitOpen.
func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// Retryable reports that the caller may resubmit later.
func (e *CircuitOpenError) Retryable() bool {
	return true
}

// UpstreamError reports a rule, document or embedding collaborator failure.
type UpstreamError struct {
	Service string
	Cause   error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Service, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Is matches ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(service string, cause error) *UpstreamError {
	return &UpstreamError{Service: service, Cause: cause}
}

// DocumentError is a failure scoped to one document of a job. The
// orchestrator counts it as a failed task and continues with the next document.
type DocumentError struct {
	DocumentID string
	Stage      string // "permission", "fetch", "chunk", "match", "persist"
	Cause      error
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %q failed at %s: %v", e.DocumentID, e.Stage, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// ReportError is a failed report export. It never fails the job.
type ReportError struct {
	Format string
	Cause  error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	return fmt.Sprintf("report export [format=%s]: %v", e.Format, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// ParamError reports an invalid rule parameter.
type ParamError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Message)
}
