package core

import (
	"time"

	"fixit/internal/backend"
	"fixit/internal/preview"
	"fixit/pkg/schema"
)

// EnrichmentStatus is the lifecycle of one enrichment operation.
type EnrichmentStatus string

const (
	EnrichmentNotStarted EnrichmentStatus = "not_started"
	EnrichmentInFlight   EnrichmentStatus = "in_flight"
	EnrichmentSucceeded  EnrichmentStatus = "succeeded"
	EnrichmentFailed     EnrichmentStatus = "failed"
)

// EnrichmentState is what the form knows about one enrichment operation.
type EnrichmentState struct {
	Status    EnrichmentStatus `json:"status"`
	Value     string           `json:"value,omitempty"`
	SourceURI string           `json:"sourceUri,omitempty"`
	// Reason explains a failure, or a degraded success.
	Reason string `json:"reason,omitempty"`
	// Token identifies the latest request; older resolutions are dropped.
	Token uint64 `json:"-"`
}

// InFlight reports whether a request is outstanding.
func (e EnrichmentState) InFlight() bool {
	return e.Status == EnrichmentInFlight
}

// StatusKind classifies a transient status message.
type StatusKind string

const (
	StatusInfo    StatusKind = "info"
	StatusWarning StatusKind = "warning"
	StatusError   StatusKind = "error"
)

// StatusMessage is a transient notice that clears itself after the policy TTL.
type StatusMessage struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message"`
	Seq     uint64     `json:"-"`
}

// FormState is the complete state owned by the machine.
type FormState struct {
	Phase Phase `json:"phase"`
	Step  int   `json:"step"`
	// PrevStep is the step to restore when a reset is cancelled.
	PrevStep int `json:"-"`

	Form    schema.FormData    `json:"form"`
	Uploads schema.UploadState `json:"uploads"`

	// ContactError is the single current contact validation message.
	ContactError string `json:"contactError,omitempty"`

	Diagnosis EnrichmentState `json:"diagnosis"`
	Address   EnrichmentState `json:"address"`

	Previews   []preview.Preview  `json:"previews"`
	Rejections []schema.Rejection `json:"rejections,omitempty"`
	Status     *StatusMessage     `json:"status,omitempty"`

	SubmitError *SubmissionError `json:"-"`
	Receipt     *backend.Receipt `json:"receipt,omitempty"`
}

// NewFormState returns the initial state: editing step 1 with an empty form.
func NewFormState() FormState {
	return FormState{
		Phase:     PhaseEditing,
		Step:      schema.WizardFirstStep,
		PrevStep:  schema.WizardFirstStep,
		Form:      schema.NewFormData(),
		Uploads:   schema.UploadState{},
		Diagnosis: EnrichmentState{Status: EnrichmentNotStarted},
		Address:   EnrichmentState{Status: EnrichmentNotStarted},
		Previews:  []preview.Preview{},
	}
}

// Clone creates a deep copy of the form state.
func (s FormState) Clone() FormState {
	clone := s
	clone.Form = s.Form.Clone()
	clone.Uploads = s.Uploads.Clone()
	clone.Previews = append([]preview.Preview(nil), s.Previews...)
	if clone.Previews == nil {
		clone.Previews = []preview.Preview{}
	}
	clone.Rejections = append([]schema.Rejection(nil), s.Rejections...)
	if s.Status != nil {
		st := *s.Status
		clone.Status = &st
	}
	if s.SubmitError != nil {
		se := *s.SubmitError
		se.Fields = append([]string(nil), s.SubmitError.Fields...)
		clone.SubmitError = &se
	}
	if s.Receipt != nil {
		r := *s.Receipt
		clone.Receipt = &r
	}
	return clone
}

// Snapshot is a read-only copy of the state plus values derived from it.
type Snapshot struct {
	FormState

	// Valid and Missing are recomputed from Form and Uploads on every read.
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`

	// SubmitErrorMessage mirrors SubmitError for serialization.
	SubmitErrorMessage string `json:"submitError,omitempty"`

	Version uint64    `json:"version"`
	TakenAt time.Time `json:"takenAt"`
}

// newSnapshot derives a snapshot from state.
func newSnapshot(s FormState, version uint64, now time.Time) Snapshot {
	snap := Snapshot{
		FormState: s.Clone(),
		Missing:   schema.MissingFields(s.Form, s.Uploads),
		Version:   version,
		TakenAt:   now,
	}
	if snap.Missing == nil {
		snap.Missing = []string{}
	}
	snap.Valid = schema.ComputeFormValidity(s.Form, s.Uploads)
	if s.SubmitError != nil {
		snap.SubmitErrorMessage = s.SubmitError.Message
	}
	return snap
}
