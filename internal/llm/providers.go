package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

const systemPrompt = "You assist a field-service dispatch desk. Answer briefly and plainly. Do not invent facts."

// GeminiCaller is the subset of the genai Models service used here.
type GeminiCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// AnthropicMessager is the subset of the Anthropic Messages service used here.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// RegisterProviders initialises Genkit and registers the configured provider's default model.
func RegisterProviders(ctx context.Context, config *Config) (*genkit.Genkit, error) {
	g := genkit.Init(ctx)

	switch config.Provider {
	case ProviderGoogleAI:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  config.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		DefineGeminiModel(g, client.Models, config.DefaultModel, int32(config.MaxOutputTokens))

	case ProviderAnthropic:
		c := anthropic.NewClient(option.WithAPIKey(config.APIKey))
		DefineAnthropicModel(g, &c.Messages, config.DefaultModel, int64(config.MaxOutputTokens))

	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}

	return g, nil
}

// DefineGeminiModel registers googleai/<model> backed by the Gemini API.
// Grounding requests become Google Maps / Google Search tools with a retrieval location.
func DefineGeminiModel(g *genkit.Genkit, caller GeminiCaller, model string, maxTokens int32) ai.Model {
	return genkit.DefineModel(
		g,
		QualifiedModelName(ProviderGoogleAI, model),
		&ai.ModelOptions{
			Label: fmt.Sprintf("Gemini %s", model),
			Supports: &ai.ModelSupports{
				Multiturn:  true,
				SystemRole: true,
			},
		},
		func(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
			cfg := &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			}
			if maxTokens > 0 {
				cfg.MaxOutputTokens = maxTokens
			}
			if gr := groundingFrom(req.Config); gr != nil {
				if gr.Maps {
					cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
				}
				if gr.Search {
					cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
				}
				if gr.Location != nil {
					lat, lng := gr.Location.Latitude, gr.Location.Longitude
					cfg.ToolConfig = &genai.ToolConfig{
						RetrievalConfig: &genai.RetrievalConfig{
							LatLng: &genai.LatLng{Latitude: &lat, Longitude: &lng},
						},
					}
				}
			}

			resp, err := caller.GenerateContent(ctx, model, genai.Text(requestText(req)), cfg)
			if err != nil {
				return nil, err
			}

			return &ai.ModelResponse{
				Request: req,
				Message: &ai.Message{
					Role:     ai.RoleModel,
					Content:  []*ai.Part{ai.NewTextPart(resp.Text())},
					Metadata: map[string]any{metadataSources: geminiSources(resp)},
				},
			}, nil
		},
	)
}

// geminiSources collects grounding chunk URIs from the first candidate, Maps first.
func geminiSources(resp *genai.GenerateContentResponse) []Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var maps, web []Source
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		if chunk.Maps != nil && chunk.Maps.URI != "" {
			maps = append(maps, Source{URI: chunk.Maps.URI, Title: chunk.Maps.Title})
		}
		if chunk.Web != nil && chunk.Web.URI != "" {
			web = append(web, Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}
	return append(maps, web...)
}

// DefineAnthropicModel registers anthropic/<model>. Grounding is not supported and is ignored.
func DefineAnthropicModel(g *genkit.Genkit, messages AnthropicMessager, model string, maxTokens int64) ai.Model {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return genkit.DefineModel(
		g,
		QualifiedModelName(ProviderAnthropic, model),
		&ai.ModelOptions{
			Label: fmt.Sprintf("Claude %s", model),
			Supports: &ai.ModelSupports{
				Multiturn:  true,
				SystemRole: true,
			},
		},
		func(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
			resp, err := messages.New(ctx, anthropic.MessageNewParams{
				Model:       anthropic.Model(model),
				MaxTokens:   maxTokens,
				System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
				Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(requestText(req)))},
				Temperature: anthropic.Float(0),
			})
			if err != nil {
				return nil, err
			}
			var sb strings.Builder
			for _, b := range resp.Content {
				if b.Type == "text" {
					sb.WriteString(b.Text)
				}
			}
			return &ai.ModelResponse{
				Request: req,
				Message: &ai.Message{
					Role:    ai.RoleModel,
					Content: []*ai.Part{ai.NewTextPart(sb.String())},
				},
			}, nil
		},
	)
}
