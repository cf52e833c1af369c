package tasks

// Diagnosis Task Types

// DiagnosisInput is the input for the diagnostic suggestion task.
type DiagnosisInput struct {
	Description string `json:"description"`
	DeviceType  string `json:"deviceType,omitempty"`
	DeviceModel string `json:"deviceModel,omitempty"`
}

// DiagnosisOutput is the output from the diagnostic suggestion task.
type DiagnosisOutput struct {
	Suggestion string `json:"suggestion"`
	Model      string `json:"model"`
}

// Address Task Types

// AddressInput is the input for the reverse-geocoding task.
type AddressInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AddressOutput is the output from the reverse-geocoding task.
type AddressOutput struct {
	// Lines always has four entries in prompt order: street, barangay, city,
	// postal code. An item the reply left out is "".
	Lines []string `json:"lines"`

	// Text is the non-empty Lines joined by newlines, ready for the address field.
	Text string `json:"text"`

	// SourceURI is the first grounding reference, if any.
	SourceURI string `json:"sourceUri,omitempty"`

	Model string `json:"model"`
}
