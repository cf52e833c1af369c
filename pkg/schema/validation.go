package schema

import (
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^\+?(?:[0-9]{1,3}[-\s.]?)?\(?[0-9]{3}\)?[-\s.]?[0-9]{3}[-\s.]?[0-9]{4,6}$`)
	linkPattern  = regexp.MustCompile(`(?i)^(https?://)?([\da-z.-]+)\.([a-z.]{2,6})([/\w .~%?=&#+-]*)/?$`)
	emailPattern = regexp.MustCompile(`(?i)^[^\s@]+@[^\s@]+\.[a-z]{2,}$`)
)

// Contact validation messages.
const (
	ContactRequiredMessage = "Contact info is required"
	ContactInvalidMessage  = "Enter a valid phone number, email, or social link"
)

// ContactCheck is the result of validating contact info.
type ContactCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// ValidateContact accepts a phone number, or a URL or email address.
func ValidateContact(value string) ContactCheck {
	value = strings.TrimSpace(value)
	if value == "" {
		return ContactCheck{Message: ContactRequiredMessage}
	}
	if phonePattern.MatchString(value) || linkPattern.MatchString(value) || emailPattern.MatchString(value) {
		return ContactCheck{Valid: true}
	}
	return ContactCheck{Message: ContactInvalidMessage}
}

// ComputeFormValidity reports whether the form can be submitted.
func ComputeFormValidity(form FormData, uploads UploadState) bool {
	return len(MissingFields(form, uploads)) == 0
}

// MissingFields lists, in form order, every field that blocks submission.
func MissingFields(form FormData, uploads UploadState) []string {
	var missing []string
	if !form.DeviceType.IsSet() {
		missing = append(missing, FieldDeviceType)
	}
	if strings.TrimSpace(form.Description) == "" {
		missing = append(missing, FieldDescription)
	}
	if strings.TrimSpace(form.Address) == "" {
		missing = append(missing, FieldAddress)
	}
	if !ValidateContact(form.ContactInfo).Valid {
		missing = append(missing, FieldContactInfo)
	}
	if len(form.Photos) > 0 && !uploads.AllComplete() {
		missing = append(missing, FieldPhotos)
	}
	return missing
}
