package schema

import (
	"fmt"
	"strings"
)

// Rejection explains why an offered file was not attached.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// AdmissionPolicy decides which offered files become attachments.
type AdmissionPolicy struct {
	// Strict limits types to AcceptedTypes and size to MaxBytes, and surfaces rejections.
	Strict        bool     `yaml:"strict"`
	MaxCount      int      `yaml:"max_count"`
	MaxBytes      int64    `yaml:"max_bytes"`
	AcceptedTypes []string `yaml:"accepted_types"`
}

// DefaultAdmissionPolicy is the lenient variant: any image/* type, capacity MaxPhotos.
func DefaultAdmissionPolicy() AdmissionPolicy {
	return AdmissionPolicy{
		MaxCount:      MaxPhotos,
		MaxBytes:      MaxPhotoBytes,
		AcceptedTypes: []string{"image/jpeg", "image/png", "image/webp"},
	}
}

// Admit filters offered files in selection order. existing is the number already attached.
func (p AdmissionPolicy) Admit(existing int, offered []Photo) ([]Photo, []Rejection) {
	maxCount := p.MaxCount
	if maxCount <= 0 {
		maxCount = MaxPhotos
	}
	remaining := maxCount - existing

	var accepted []Photo
	var rejected []Rejection
	for _, f := range offered {
		if reason := p.typeRejection(f); reason != "" {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: reason})
			continue
		}
		if len(accepted) >= remaining {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: fmt.Sprintf("limit of %d photos reached", maxCount)})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

func (p AdmissionPolicy) typeRejection(f Photo) string {
	contentType := strings.ToLower(strings.TrimSpace(f.ContentType))
	if !p.Strict {
		if !strings.HasPrefix(contentType, "image/") {
			return "not an image"
		}
		return ""
	}
	allowed := false
	for _, t := range p.AcceptedTypes {
		if strings.EqualFold(t, contentType) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Sprintf("unsupported type %q", f.ContentType)
	}
	maxBytes := p.MaxBytes
	if maxBytes <= 0 {
		maxBytes = MaxPhotoBytes
	}
	if f.Size > maxBytes {
		return fmt.Sprintf("larger than %d MB", maxBytes>>20)
	}
	return ""
}
