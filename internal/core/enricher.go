package core

import (
	"context"
	"sync"

	"fixit/internal/llm"
	"fixit/internal/llm/tasks"
)

// Enricher abstracts the AI enrichment tasks for testability.
type Enricher interface {
	Diagnose(ctx context.Context, input *tasks.DiagnosisInput) (*tasks.DiagnosisOutput, error)
	ReverseGeocode(ctx context.Context, input *tasks.AddressInput) (*tasks.AddressOutput, error)
}

// LLMEnricher implements Enricher with a text-generation collaborator.
type LLMEnricher struct {
	gen llm.Generator
}

// NewLLMEnricher creates an Enricher that calls gen.
func NewLLMEnricher(gen llm.Generator) *LLMEnricher {
	return &LLMEnricher{gen: gen}
}

// Diagnose runs the diagnosis task.
func (e *LLMEnricher) Diagnose(ctx context.Context, input *tasks.DiagnosisInput) (*tasks.DiagnosisOutput, error) {
	return tasks.ExecuteDiagnosisTask(ctx, e.gen, input)
}

// ReverseGeocode runs the address task.
func (e *LLMEnricher) ReverseGeocode(ctx context.Context, input *tasks.AddressInput) (*tasks.AddressOutput, error) {
	return tasks.ExecuteAddressTask(ctx, e.gen, input)
}

// MockEnricher implements Enricher for testing with canned responses.
// The Func hooks, when set, take precedence over the canned values.
type MockEnricher struct {
	DiagnosisOutput *tasks.DiagnosisOutput
	AddressOutput   *tasks.AddressOutput

	DiagnosisError error
	AddressError   error

	DiagnoseFunc func(ctx context.Context, input *tasks.DiagnosisInput) (*tasks.DiagnosisOutput, error)
	GeocodeFunc  func(ctx context.Context, input *tasks.AddressInput) (*tasks.AddressOutput, error)

	mu             sync.Mutex
	diagnosisCalls int
	addressCalls   int
}

// NewMockEnricher creates a mock enricher with default successful responses.
func NewMockEnricher() *MockEnricher {
	return &MockEnricher{
		DiagnosisOutput: &tasks.DiagnosisOutput{
			Suggestion: "Check the charging port for debris and test with a known-good cable.",
			Model:      "mock/model",
		},
		AddressOutput: &tasks.AddressOutput{
			Lines:     []string{"12 Mabini Street", "Barangay San Roque", "Quezon City, Metro Manila", "1109"},
			Text:      "12 Mabini Street\nBarangay San Roque\nQuezon City, Metro Manila\n1109",
			SourceURI: "https://maps.google.com/?cid=42",
			Model:     "mock/model",
		},
	}
}

// Diagnose counts the call, then runs DiagnoseFunc or returns the scripted output or error.
func (m *MockEnricher) Diagnose(ctx context.Context, input *tasks.DiagnosisInput) (*tasks.DiagnosisOutput, error) {
	m.mu.Lock()
	m.diagnosisCalls++
	m.mu.Unlock()
	if m.DiagnoseFunc != nil {
		return m.DiagnoseFunc(ctx, input)
	}
	if m.DiagnosisError != nil {
		return nil, m.DiagnosisError
	}
	return m.DiagnosisOutput, nil
}

// ReverseGeocode counts the call, then runs GeocodeFunc or returns the scripted output or error.
func (m *MockEnricher) ReverseGeocode(ctx context.Context, input *tasks.AddressInput) (*tasks.AddressOutput, error) {
	m.mu.Lock()
	m.addressCalls++
	m.mu.Unlock()
	if m.GeocodeFunc != nil {
		return m.GeocodeFunc(ctx, input)
	}
	if m.AddressError != nil {
		return nil, m.AddressError
	}
	return m.AddressOutput, nil
}

// DiagnosisCalls returns how many times Diagnose ran.
func (m *MockEnricher) DiagnosisCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diagnosisCalls
}

// AddressCalls returns how many times ReverseGeocode ran.
func (m *MockEnricher) AddressCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addressCalls
}
