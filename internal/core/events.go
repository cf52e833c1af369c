package core

import (
	"fixit/internal/backend"
	"fixit/internal/geo"
	"fixit/internal/upload"
	"fixit/pkg/schema"
)

// Event is one input to the machine. User events are exported; async
// resolutions are produced internally and fed through the same Dispatch path.
type Event interface {
	Kind() string
}

// SelectDevice chooses the device category.
type SelectDevice struct {
	Device schema.DeviceType
}

// SetField sets one free-text field by its JSON name.
type SetField struct {
	Field string
	Value string
}

// SetPriority chooses the urgency.
type SetPriority struct {
	Priority schema.Priority
}

// AttachPhotos offers files in selection order. Photos without an ID get one.
type AttachPhotos struct {
	Photos []schema.Photo
	// Refused lists files the caller could not take in full. They count as
	// rejections under the admission policy.
	Refused []schema.Rejection
}

// RemovePhoto detaches a photo and stops its upload.
type RemovePhoto struct {
	ID string
}

// RetryUpload restarts a failed upload.
type RetryUpload struct {
	ID string
}

// FocusStep records which wizard section is in view.
type FocusStep struct {
	Step int
}

// StepForward moves focus to the next section.
type StepForward struct{}

// StepBack moves focus to the previous section.
type StepBack struct{}

// BlurDescription fires when the description loses focus.
type BlurDescription struct{}

// RequestDiagnosis asks for a suggestion explicitly.
type RequestDiagnosis struct{}

// Locate resolves the address from the device position.
type Locate struct {
	Locator geo.Locator
}

// SubmitRequested opens the submit confirmation.
type SubmitRequested struct{}

// CancelSubmit closes the submit confirmation.
type CancelSubmit struct{}

// ConfirmSubmit sends the request.
type ConfirmSubmit struct{}

// RequestReset opens the reset confirmation.
type RequestReset struct{}

// CancelReset closes the reset confirmation.
type CancelReset struct{}

// ConfirmReset clears everything.
type ConfirmReset struct{}

// GoHome leaves the success screen for a fresh form.
type GoHome struct{}

func (SelectDevice) Kind() string     { return "select_device" }
func (SetField) Kind() string         { return "set_field" }
func (SetPriority) Kind() string      { return "set_priority" }
func (AttachPhotos) Kind() string     { return "attach_photos" }
func (RemovePhoto) Kind() string      { return "remove_photo" }
func (RetryUpload) Kind() string      { return "retry_upload" }
func (FocusStep) Kind() string        { return "focus_step" }
func (StepForward) Kind() string      { return "step_forward" }
func (StepBack) Kind() string         { return "step_back" }
func (BlurDescription) Kind() string  { return "blur_description" }
func (RequestDiagnosis) Kind() string { return "request_diagnosis" }
func (Locate) Kind() string           { return "locate" }
func (SubmitRequested) Kind() string  { return "submit_requested" }
func (CancelSubmit) Kind() string     { return "cancel_submit" }
func (ConfirmSubmit) Kind() string    { return "confirm_submit" }
func (RequestReset) Kind() string     { return "request_reset" }
func (CancelReset) Kind() string      { return "cancel_reset" }
func (ConfirmReset) Kind() string     { return "confirm_reset" }
func (GoHome) Kind() string           { return "go_home" }

// Internal resolutions.

type uploadUpdated struct {
	update upload.Update
}

type diagnosisResolved struct {
	token   uint64
	outcome Outcome
}

type addressResolved struct {
	token   uint64
	outcome AddressOutcome
}

type submissionResolved struct {
	token   uint64
	receipt *backend.Receipt
	err     error
}

type previewDecoded struct {
	generation uint64
	id         string
	err        error
}

type statusExpired struct {
	seq uint64
}

func (uploadUpdated) Kind() string      { return "upload_updated" }
func (diagnosisResolved) Kind() string  { return "diagnosis_resolved" }
func (addressResolved) Kind() string    { return "address_resolved" }
func (submissionResolved) Kind() string { return "submission_resolved" }
func (previewDecoded) Kind() string     { return "preview_decoded" }
func (statusExpired) Kind() string      { return "status_expired" }

// isUserEvent reports whether ev originates from the presentation layer.
func isUserEvent(ev Event) bool {
	switch ev.(type) {
	case uploadUpdated, diagnosisResolved, addressResolved, submissionResolved, previewDecoded, statusExpired:
		return false
	default:
		return true
	}
}
