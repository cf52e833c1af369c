package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by Dispatch after the machine has been closed.
var ErrClosed = errors.New("form machine closed")

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Message string
	// Fields lists every blocking field when the whole form is rejected.
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransitionError is returned when an event is not allowed in the current phase.
type TransitionError struct {
	From  Phase
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Event, e.From)
}

// EnrichmentError represents a failed AI enrichment. It is never fatal to the form.
type EnrichmentError struct {
	Op     string // "diagnosis" or "address"
	Reason string // human-readable
	Err    error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("%s enrichment: %s", e.Op, e.Reason)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

// SubmissionError represents a failed delivery to the backend.
type SubmissionError struct {
	Message string
	Fields  []string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %s", e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
