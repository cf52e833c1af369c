// Package backend delivers confirmed intake requests to the dispatch backend.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"fixit/pkg/schema"
)

// Submission is everything sent for one confirmed request.
type Submission struct {
	Form    schema.FormData    `json:"form" yaml:"form"`
	Uploads schema.UploadState `json:"uploads" yaml:"uploads"`
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	ID         string    `json:"id" yaml:"id"`
	ReceivedAt time.Time `json:"receivedAt" yaml:"received_at"`
}

// Submitter delivers a submission. Implementations must honor ctx cancellation.
type Submitter interface {
	Submit(ctx context.Context, s *Submission) (*Receipt, error)
}

// FieldError is one field-level complaint returned by the backend.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RejectedError is returned when the backend refuses the submission's content.
type RejectedError struct {
	Errors []FieldError
}

func (e *RejectedError) Error() string {
	if len(e.Errors) == 0 {
		return "submission rejected"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "submission rejected: " + strings.Join(parts, "; ")
}

// Simulated stands in for a real backend: it waits Delay, then accepts.
type Simulated struct {
	Delay time.Duration

	// Err, when set, is returned after the delay instead of a receipt.
	Err error
}

// NewSimulated creates a simulated backend with the given delay.
func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{Delay: delay}
}

// Submit waits for the delay and issues a ULID receipt.
func (s *Simulated) Submit(ctx context.Context, sub *Submission) (*Receipt, error) {
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("simulated submit: %w", ctx.Err())
	case <-timer.C:
	}

	if s.Err != nil {
		return nil, s.Err
	}
	return newReceipt(), nil
}

func newReceipt() *Receipt {
	return &Receipt{ID: ulid.Make().String(), ReceivedAt: time.Now().UTC()}
}
