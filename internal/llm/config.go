package llm

import (
	"fmt"
	"time"
)

// Provider names the backend a model is served by.
type Provider string

const (
	ProviderGoogleAI  Provider = "googleai"
	ProviderAnthropic Provider = "anthropic"
)

// Config contains configuration for the LLM client.
type Config struct {
	// Provider selects the model backend
	// Default: googleai
	Provider Provider

	// APIKey is the provider API key
	APIKey string

	// DefaultModel is the provider model id used when a request names none
	// Example: gemini-2.5-flash
	DefaultModel string

	// Timeout bounds a single generation
	// Default: 30 seconds
	Timeout time.Duration

	// MaxOutputTokens caps generated text
	// Default: 512
	MaxOutputTokens int
}

// Validate checks that required config fields are set.
func (c *Config) Validate() error {
	switch c.Provider {
	case "", ProviderGoogleAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	if c.APIKey == "" {
		return fmt.Errorf("APIKey is required")
	}

	return nil
}

// SetDefaults fills in default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderGoogleAI
	}

	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModels()[c.Provider].Name
	}

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 512
	}
}

// ModelName returns the registry name of the default model.
func (c *Config) ModelName() string {
	return QualifiedModelName(c.Provider, c.DefaultModel)
}

// QualifiedModelName joins provider and model id the way models are registered.
func QualifiedModelName(provider Provider, model string) string {
	return fmt.Sprintf("%s/%s", provider, model)
}

// ModelConfig contains configuration for a specific model.
type ModelConfig struct {
	// Name is the provider model identifier
	Name string

	// SupportsGrounding indicates if the model can ground answers in Maps/Search
	SupportsGrounding bool

	// Description is a human-readable description
	Description string
}

// DefaultModels returns the default model per provider.
func DefaultModels() map[Provider]ModelConfig {
	return map[Provider]ModelConfig{
		ProviderGoogleAI: {
			Name:              "gemini-2.5-flash",
			SupportsGrounding: true,
			Description:       "Gemini 2.5 Flash - fast responses, Maps grounding",
		},
		ProviderAnthropic: {
			Name:              "claude-3-5-haiku-latest",
			SupportsGrounding: false,
			Description:       "Claude 3.5 Haiku - fast responses",
		},
	}
}
