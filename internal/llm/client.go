package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// metadataSources is the response message metadata key carrying grounding sources.
const metadataSources = "sources"

// Generator produces text from a prompt. It is the seam the enrichment code depends on.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// LatLng is a position used to bias grounded answers.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Grounding asks the model to ground its answer in external sources.
type Grounding struct {
	Maps     bool    `json:"maps,omitempty"`
	Search   bool    `json:"search,omitempty"`
	Location *LatLng `json:"location,omitempty"`
}

// Request is a single-turn generation request.
type Request struct {
	// Model is the registry name ("provider/model"). Empty uses the client default.
	Model     string
	Prompt    string
	Grounding *Grounding
}

// Source is a grounding reference returned with a response.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Response is the generated text plus any grounding sources.
type Response struct {
	Text    string
	Sources []Source
	Model   string
}

// Client is the LLM client. Models are resolved from a Genkit registry.
type Client struct {
	g            *genkit.Genkit
	defaultModel string
	timeout      time.Duration
}

// NewClient creates a new LLM client with the configured provider registered.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.SetDefaults()

	g, err := RegisterProviders(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("register providers: %w", err)
	}

	return &Client{
		g:            g,
		defaultModel: config.ModelName(),
		timeout:      config.Timeout,
	}, nil
}

// NewClientWithGenkit wraps an existing Genkit instance whose models are already defined.
func NewClientWithGenkit(g *genkit.Genkit, defaultModel string, timeout time.Duration) *Client {
	return &Client{g: g, defaultModel: defaultModel, timeout: timeout}
}

// DefaultModel returns the registry name used when a request names none.
func (c *Client) DefaultModel() string {
	return c.defaultModel
}

// Generate runs a single attempt against the requested model. No retries.
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	m := genkit.LookupModel(c.g, model)
	if m == nil {
		return nil, NewAPIError(0, fmt.Sprintf("model %q is not registered", model))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	mreq := &ai.ModelRequest{
		Messages: []*ai.Message{
			{
				Role:    ai.RoleUser,
				Content: []*ai.Part{ai.NewTextPart(req.Prompt)},
			},
		},
	}
	if req.Grounding != nil {
		mreq.Config = req.Grounding
	}

	slog.Info("LLM generation attempt",
		"model", model,
		"prompt_length", len(req.Prompt),
		"grounded", req.Grounding != nil,
	)

	start := time.Now()
	resp, err := m.Generate(ctx, mreq, nil)
	duration := time.Since(start)

	if err != nil {
		slog.Error("LLM generation failed",
			"model", model,
			"error", err.Error(),
			"duration", duration,
		)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewTimeoutError(err)
		}
		return nil, ClassifyError(err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return nil, NewEmptyError()
	}

	out := &Response{Text: text, Model: model}
	if resp.Message != nil {
		out.Sources = sourcesFrom(resp.Message.Metadata[metadataSources])
	}

	slog.Info("LLM generation succeeded",
		"model", model,
		"duration", duration,
		"sources", len(out.Sources),
	)
	return out, nil
}

// responseText concatenates the text parts of a model response.
func responseText(resp *ai.ModelResponse) string {
	if resp == nil || resp.Message == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Message.Content {
		if p != nil && p.IsText() {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// requestText concatenates the text parts of every message in a model request.
func requestText(req *ai.ModelRequest) string {
	var sb strings.Builder
	for _, m := range req.Messages {
		for _, p := range m.Content {
			if p != nil && p.IsText() {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(p.Text)
			}
		}
	}
	return sb.String()
}

// groundingFrom recovers grounding options from a model request config,
// which may arrive typed or as decoded JSON.
func groundingFrom(cfg any) *Grounding {
	switch v := cfg.(type) {
	case nil:
		return nil
	case *Grounding:
		return v
	case Grounding:
		return &v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var g Grounding
		if err := json.Unmarshal(data, &g); err != nil {
			return nil
		}
		return &g
	}
}

// sourcesFrom recovers grounding sources from response metadata.
func sourcesFrom(v any) []Source {
	switch s := v.(type) {
	case nil:
		return nil
	case []Source:
		return s
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return nil
		}
		var out []Source
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
}

// CleanMarkdownCodeBlocks removes markdown code block wrappers
// Some models (especially Gemini) wrap output in ```...```.
func CleanMarkdownCodeBlocks(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		if i := strings.IndexByte(content, '\n'); i >= 0 && !strings.Contains(content[:i], " ") {
			// Drop the language tag line.
			content = content[i+1:]
		}
		content = strings.TrimSpace(content)
	}

	if strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	return content
}
