package review

import (
	"context"
	"errors"
	"fmt"
)

// ErrDocumentEmpty is returned before any stage runs when the extracted text
// is empty or whitespace.
var ErrDocumentEmpty = errors.New("document is empty")

// DependencyError wraps a failure of an external collaborator (LLM, embedder,
// retriever) or a malformed result from one. Timeouts are reported this way too.
type DependencyError struct {
	Stage string
	Err   error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s: dependency failure: %v", e.Stage, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid rule set, scorer or orchestrator option.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// CanceledError reports that the caller's context ended, by cancellation or
// an elapsed deadline, before or while Stage ran.
type CanceledError struct {
	Stage string
	Err   error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("review cancelled at %s: %v", e.Stage, e.Err)
}

func (e *CanceledError) Unwrap() error {
	return e.Err
}

// InvariantViolation is a programming error: a stage wrote a field it does
// not own or broke a set-once/append-only discipline.
type InvariantViolation struct {
	Stage  string
	Field  Field
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in stage %s on %s: %s", e.Stage, e.Field, e.Reason)
}

type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindDocumentEmpty ErrorKind = "document_empty"
	KindDependency    ErrorKind = "dependency_failure"
	KindConfiguration ErrorKind = "configuration_error"
	KindInvariant     ErrorKind = "invariant_violation"
	KindCanceled      ErrorKind = "canceled"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err for callers that map errors onto status codes.
func Kind(err error) ErrorKind {
	var (
		depErr *DependencyError
		cfgErr *ConfigurationError
		invErr *InvariantViolation
		canErr *CanceledError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDocumentEmpty):
		return KindDocumentEmpty
	case errors.As(err, &invErr):
		return KindInvariant
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &depErr):
		return KindDependency
	case errors.As(err, &canErr), errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}
