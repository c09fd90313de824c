// pkg/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a pipeline failure. The taxonomy drives how each failure
// degrades: input errors become structured response fields, storage errors
// degrade to empty results, external errors go through the retry policy,
// parse errors fall through the multi-stage extraction chain.
type Kind string

const (
	KindInput    Kind = "input"
	KindStorage  Kind = "storage"
	KindExternal Kind = "external"
	KindParse    Kind = "parse"
)

// Error is a structured pipeline error. Component names the producing
// subsystem (store, analyzer, notify, api), Retriable marks failures the
// backoff policy may retry.
type Error struct {
	Component string                 `json:"component"`
	Kind      Kind                   `json:"kind"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Retriable bool                   `json:"retriable"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Component, e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is (or wraps) a pipeline error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

func NewInputError(component, message string, details map[string]interface{}) *Error {
	return &Error{
		Component: component,
		Kind:      KindInput,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

func NewStorageError(component, operation string, cause error) *Error {
	return &Error{
		Component: component,
		Kind:      KindStorage,
		Message:   fmt.Sprintf("storage operation failed: %s", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Timestamp: time.Now(),
		Retriable: true,
		Cause:     cause,
	}
}

func NewExternalError(component string, status int, cause error) *Error {
	return &Error{
		Component: component,
		Kind:      KindExternal,
		Message:   fmt.Sprintf("external service failure (status %d)", status),
		Details: map[string]interface{}{
			"status": status,
		},
		Timestamp: time.Now(),
		Retriable: status == 429 || status >= 500,
		Cause:     cause,
	}
}

func NewParseError(component, what string, cause error) *Error {
	return &Error{
		Component: component,
		Kind:      KindParse,
		Message:   fmt.Sprintf("failed to parse %s", what),
		Details: map[string]interface{}{
			"what": what,
		},
		Timestamp: time.Now(),
		Cause:     cause,
	}
}
