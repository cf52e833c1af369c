package schema

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewPhotoID generates a new photo ID in format PH-{nanoid(12)}.
func NewPhotoID() (string, error) {
	id, err := gonanoid.New(12)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PH-%s", id), nil
}

// NewEventID generates a new event ID in format EVT-{nanoid(10)}.
func NewEventID() (string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EVT-%s", id), nil
}

// NewPreviewHandle generates an opaque preview handle.
func NewPreviewHandle() (string, error) {
	return gonanoid.New(16)
}
