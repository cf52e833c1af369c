package core

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fixit/pkg/schema"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// Policy holds the domain knobs of the intake form.
type Policy struct {
	Upload schema.AdmissionPolicy `yaml:"upload"`

	// StatusTTL is how long a transient status message stays visible.
	StatusTTL time.Duration `yaml:"status_ttl"`

	// LocateTimeout bounds geolocation plus reverse geocoding.
	LocateTimeout      time.Duration `yaml:"locate_timeout"`
	LocateHighAccuracy bool          `yaml:"locate_high_accuracy"`

	DiagnosisTimeout time.Duration `yaml:"diagnosis_timeout"`
	SubmitTimeout    time.Duration `yaml:"submit_timeout"`

	// SubmitDelay is the simulated backend's response delay.
	SubmitDelay time.Duration `yaml:"submit_delay"`

	FallbackAddress   string `yaml:"fallback_address"`
	DiagnosisFallback string `yaml:"diagnosis_fallback"`
	AutoDiagnose      bool   `yaml:"auto_diagnose"`

	JournalSize int `yaml:"journal_size"`
}

// DefaultPolicy returns the embedded defaults.
func DefaultPolicy() Policy {
	var p Policy
	if err := yaml.Unmarshal(defaultPolicyYAML, &p); err != nil {
		panic(fmt.Sprintf("embedded policy: %v", err))
	}
	return p
}

// LoadPolicy overlays the YAML file at path on the defaults. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks that every bound is usable.
func (p Policy) Validate() error {
	if p.Upload.MaxCount < 1 || p.Upload.MaxCount > schema.MaxPhotos {
		return &ValidationError{Field: "upload.max_count", Message: fmt.Sprintf("must be 1-%d", schema.MaxPhotos)}
	}
	if p.Upload.MaxBytes <= 0 {
		return &ValidationError{Field: "upload.max_bytes", Message: "must be positive"}
	}
	if p.Upload.Strict && len(p.Upload.AcceptedTypes) == 0 {
		return &ValidationError{Field: "upload.accepted_types", Message: "required in strict mode"}
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"status_ttl", p.StatusTTL},
		{"locate_timeout", p.LocateTimeout},
		{"diagnosis_timeout", p.DiagnosisTimeout},
		{"submit_timeout", p.SubmitTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return &ValidationError{Field: d.name, Message: "must be positive"}
		}
	}
	if p.SubmitDelay < 0 {
		return &ValidationError{Field: "submit_delay", Message: "must not be negative"}
	}
	if p.JournalSize < 0 {
		return &ValidationError{Field: "journal_size", Message: "must not be negative"}
	}
	return nil
}
