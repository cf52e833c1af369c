package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Fixture represents a recorded LLM interaction for testing.
type Fixture struct {
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Output    string          `json:"output"`
	Sources   []Source        `json:"sources,omitempty"`
	Model     string          `json:"model"`
	Timestamp time.Time       `json:"timestamp"`
}

// UnmarshalInput unmarshals the fixture input into the specified type.
func (f *Fixture) UnmarshalInput(v interface{}) error {
	return json.Unmarshal(f.Input, v)
}

// Response returns the recorded reply.
func (f *Fixture) Response() *Response {
	return &Response{Text: f.Output, Sources: f.Sources, Model: f.Model}
}

// Generator returns a MockGenerator that replays the recorded reply.
func (f *Fixture) Generator() *MockGenerator {
	return &MockGenerator{Responses: []*Response{f.Response()}}
}

// LoadFixture loads <dir>/<name>.json.
func LoadFixture(dir, name string) (*Fixture, error) {
	fixturePath := filepath.Join(dir, name+".json")

	data, err := os.ReadFile(fixturePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fixture not found: %s\n\nFixtures not recorded. Run:\n  GEMINI_API_KEY=... fixit demo --record %s", name, dir)
		}
		return nil, fmt.Errorf("read fixture %s: %w", name, err)
	}

	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse fixture %s (invalid JSON): %w", name, err)
	}

	if err := fixture.validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}

	return &fixture, nil
}

// SaveFixture writes <dir>/<name>.json atomically.
func SaveFixture(dir, name string, fixture *Fixture) error {
	if err := fixture.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create fixtures directory: %w", err)
	}

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	// Write to temp, then rename
	fixturePath := filepath.Join(dir, name+".json")
	tempPath := fixturePath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp fixture %s: %w", name, err)
	}

	if err := os.Rename(tempPath, fixturePath); err != nil {
		_ = os.Remove(tempPath) // Best effort cleanup, ignore error
		return fmt.Errorf("rename fixture %s: %w", name, err)
	}

	return nil
}

func (f *Fixture) validate() error {
	if f.Name == "" {
		return fmt.Errorf("missing 'name' field")
	}
	if f.Model == "" {
		return fmt.Errorf("missing 'model' field")
	}
	if len(f.Input) == 0 {
		return fmt.Errorf("missing 'input' field")
	}
	if f.Output == "" {
		return fmt.Errorf("missing 'output' field")
	}
	return nil
}
