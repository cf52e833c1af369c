package core

import (
	"fmt"
	"os"
	"time"

	"fixit/internal/llm"
)

// ProviderNone disables AI enrichment.
const ProviderNone = "none"

// Config holds the application configuration.
type Config struct {
	LogLevel        string // debug, info, warn, error
	Addr            string // HTTP listen address
	LLMProvider     string // googleai, anthropic, none
	GeminiAPIKey    string
	AnthropicAPIKey string
	Model           string // Provider model id; empty uses the provider default
	PolicyFile      string // Optional YAML policy overlay
	BackendURL      string // Submission endpoint; empty simulates
	SpoolDir        string // Local submission spool; used when BackendURL is empty
	UploadURL       string // Photo upload endpoint; empty simulates
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", "info")

	// DEBUG flag overrides log level
	if os.Getenv("DEBUG") == "1" {
		logLevel = "debug"
	}

	cfg := &Config{
		LogLevel:        logLevel,
		Addr:            getEnvOrDefault("FIXIT_ADDR", ":8080"),
		LLMProvider:     getEnvOrDefault("FIXIT_LLM_PROVIDER", string(llm.ProviderGoogleAI)),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Model:           os.Getenv("FIXIT_MODEL"),
		PolicyFile:      os.Getenv("FIXIT_POLICY_FILE"),
		BackendURL:      os.Getenv("FIXIT_BACKEND_URL"),
		SpoolDir:        os.Getenv("FIXIT_SPOOL_DIR"),
		UploadURL:       os.Getenv("FIXIT_UPLOAD_URL"),
	}

	switch cfg.LLMProvider {
	case string(llm.ProviderGoogleAI), string(llm.ProviderAnthropic), ProviderNone:
	default:
		return nil, fmt.Errorf("FIXIT_LLM_PROVIDER must be googleai, anthropic or none, got %q", cfg.LLMProvider)
	}

	return cfg, nil
}

// LLMConfig returns the client configuration for the selected provider.
// It returns false when enrichment is disabled or the provider has no API key;
// the form still works without AI.
func (c *Config) LLMConfig() (*llm.Config, bool) {
	var key string
	switch c.LLMProvider {
	case string(llm.ProviderGoogleAI):
		key = c.GeminiAPIKey
	case string(llm.ProviderAnthropic):
		key = c.AnthropicAPIKey
	default:
		return nil, false
	}
	if key == "" {
		return nil, false
	}
	return &llm.Config{
		Provider:     llm.Provider(c.LLMProvider),
		APIKey:       key,
		DefaultModel: c.Model,
		Timeout:      20 * time.Second,
	}, true
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
