package schema

import "fmt"

// DeviceType is the hardware or software category the request is about.
type DeviceType string

const (
	DeviceLaptop     DeviceType = "Laptop / Computer"
	DeviceSmartphone DeviceType = "Smartphone"
	DeviceWebsite    DeviceType = "Website / Software"
	DeviceOther      DeviceType = "Other"
)

// DeviceTypes lists every selectable device type in display order.
var DeviceTypes = []DeviceType{DeviceLaptop, DeviceSmartphone, DeviceWebsite, DeviceOther}

// IsSet reports whether a device type has been chosen.
func (d DeviceType) IsSet() bool {
	return d != ""
}

// ParseDeviceType resolves a device type from its display value.
func ParseDeviceType(s string) (DeviceType, error) {
	for _, d := range DeviceTypes {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid device type: %q", s)
}

// Priority represents how quickly the customer needs a technician.
type Priority string

const (
	PriorityLow    Priority = "Low"    // No rush
	PriorityMedium Priority = "Medium" // Normal
	PriorityHigh   Priority = "High"   // Faster response
	PriorityUrgent Priority = "Urgent" // Immediate help
)

// ParsePriority resolves a priority from its display value.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("invalid priority: %q", s)
	}
}

// UploadStatus is the lifecycle state of a single attached photo.
type UploadStatus string

const (
	UploadUploading UploadStatus = "uploading"
	UploadComplete  UploadStatus = "complete"
	UploadError     UploadStatus = "error"
)

// Limits for the intake form.
const (
	MaxPhotos          = 10
	MaxPhotoBytes      = 10 << 20
	DiagnosisMinChars  = 10
	ProgressComplete   = 100
	WizardFirstStep    = 1
	WizardLastStep     = 4
	DescriptionMaxChar = 4000
)
