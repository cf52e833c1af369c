package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGemini struct {
	model  string
	prompt string
	config *genai.GenerateContentConfig
	resp   *genai.GenerateContentResponse
	err    error
}

func (f *fakeGemini) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

type fakeMessager struct {
	params anthropic.MessageNewParams
	resp   *anthropic.Message
	err    error
}

func (f *fakeMessager) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.resp, f.err
}

func defineTextModel(g *genkit.Genkit, name string, fn func(req *ai.ModelRequest) (*ai.ModelResponse, error)) {
	genkit.DefineModel(g, name, &ai.ModelOptions{Label: name},
		func(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
			return fn(req)
		})
}

func textResponse(req *ai.ModelRequest, text string, metadata map[string]any) *ai.ModelResponse {
	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:     ai.RoleModel,
			Content:  []*ai.Part{ai.NewTextPart(text)},
			Metadata: metadata,
		},
	}
}

func TestNewClient(t *testing.T) {
	t.Run("missing API key", func(t *testing.T) {
		_, err := NewClient(context.Background(), &Config{Provider: ProviderAnthropic})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "APIKey is required")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClient(context.Background(), &Config{Provider: "openrouter", APIKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown provider")
	})

	t.Run("anthropic registers default model", func(t *testing.T) {
		client, err := NewClient(context.Background(), &Config{Provider: ProviderAnthropic, APIKey: "test-key"})
		require.NoError(t, err)
		assert.Equal(t, "anthropic/claude-3-5-haiku-latest", client.DefaultModel())
		assert.NotNil(t, genkit.LookupModel(client.g, client.DefaultModel()))
		assert.Equal(t, 30*time.Second, client.timeout)
	})
}

func TestClient_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns trimmed text and sources", func(t *testing.T) {
		g := genkit.Init(ctx)
		var seen *ai.ModelRequest
		defineTextModel(g, "test/ok", func(req *ai.ModelRequest) (*ai.ModelResponse, error) {
			seen = req
			return textResponse(req, "  Check the charger.  ", map[string]any{
				metadataSources: []Source{{URI: "https://maps.example/a", Title: "A"}},
			}), nil
		})
		client := NewClientWithGenkit(g, "test/ok", time.Second)

		resp, err := client.Generate(ctx, &Request{
			Prompt:    "why",
			Grounding: &Grounding{Maps: true, Location: &LatLng{Latitude: 1, Longitude: 2}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Check the charger.", resp.Text)
		assert.Equal(t, "test/ok", resp.Model)
		assert.Equal(t, []Source{{URI: "https://maps.example/a", Title: "A"}}, resp.Sources)

		require.NotNil(t, seen)
		assert.Equal(t, "why", requestText(seen))
		gr := groundingFrom(seen.Config)
		require.NotNil(t, gr)
		assert.True(t, gr.Maps)
		assert.Equal(t, 2.0, gr.Location.Longitude)
	})

	t.Run("request model overrides default", func(t *testing.T) {
		g := genkit.Init(ctx)
		defineTextModel(g, "test/a", func(req *ai.ModelRequest) (*ai.ModelResponse, error) {
			return textResponse(req, "a", nil), nil
		})
		defineTextModel(g, "test/b", func(req *ai.ModelRequest) (*ai.ModelResponse, error) {
			return textResponse(req, "b", nil), nil
		})
		client := NewClientWithGenkit(g, "test/a", 0)

		resp, err := client.Generate(ctx, &Request{Model: "test/b", Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "b", resp.Text)
	})

	t.Run("unknown model", func(t *testing.T) {
		client := NewClientWithGenkit(genkit.Init(ctx), "test/missing", 0)

		_, err := client.Generate(ctx, &Request{Prompt: "x"})
		var llmErr *LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrorTypeAPI, llmErr.Type)
	})

	t.Run("empty reply", func(t *testing.T) {
		g := genkit.Init(ctx)
		defineTextModel(g, "test/empty", func(req *ai.ModelRequest) (*ai.ModelResponse, error) {
			return textResponse(req, "   ", nil), nil
		})
		client := NewClientWithGenkit(g, "test/empty", 0)

		_, err := client.Generate(ctx, &Request{Prompt: "x"})
		var llmErr *LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrorTypeEmpty, llmErr.Type)
	})

	t.Run("provider error is classified", func(t *testing.T) {
		g := genkit.Init(ctx)
		defineTextModel(g, "test/fail", func(req *ai.ModelRequest) (*ai.ModelResponse, error) {
			return nil, errors.New("upstream returned status 503")
		})
		client := NewClientWithGenkit(g, "test/fail", 0)

		_, err := client.Generate(ctx, &Request{Prompt: "x"})
		var llmErr *LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrorTypeAPI, llmErr.Type)
		assert.Equal(t, 503, llmErr.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		g := genkit.Init(ctx)
		genkit.DefineModel(g, "test/slow", &ai.ModelOptions{Label: "slow"},
			func(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		client := NewClientWithGenkit(g, "test/slow", 20*time.Millisecond)

		_, err := client.Generate(ctx, &Request{Prompt: "x"})
		var llmErr *LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrorTypeTimeout, llmErr.Type)
	})
}

func TestDefineGeminiModel(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	fake := &fakeGemini{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText("Rizal Avenue\nBarangay 310\nManila\n1003", genai.RoleModel),
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://web.example/x"}},
					{Maps: &genai.GroundingChunkMaps{URI: "https://maps.example/place", Title: "Place"}},
				},
			},
		}},
	}}
	DefineGeminiModel(g, fake, "gemini-test", 256)
	client := NewClientWithGenkit(g, QualifiedModelName(ProviderGoogleAI, "gemini-test"), time.Second)

	resp, err := client.Generate(ctx, &Request{
		Prompt:    BuildAddressPrompt(14.6, 120.98),
		Grounding: &Grounding{Maps: true, Location: &LatLng{Latitude: 14.6, Longitude: 120.98}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-test", fake.model)
	assert.Contains(t, fake.prompt, "latitude 14.600000")
	require.NotNil(t, fake.config)
	assert.Equal(t, int32(256), fake.config.MaxOutputTokens)
	require.Len(t, fake.config.Tools, 1)
	assert.NotNil(t, fake.config.Tools[0].GoogleMaps)
	require.NotNil(t, fake.config.ToolConfig)
	assert.Equal(t, 14.6, *fake.config.ToolConfig.RetrievalConfig.LatLng.Latitude)

	assert.Equal(t, "Rizal Avenue\nBarangay 310\nManila\n1003", resp.Text)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "https://maps.example/place", resp.Sources[0].URI)
	assert.Equal(t, "https://web.example/x", resp.Sources[1].URI)
}

func TestDefineGeminiModel_NoGrounding(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	fake := &fakeGemini{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText("Replace the battery.", genai.RoleModel)}},
	}}
	DefineGeminiModel(g, fake, "gemini-test", 0)
	client := NewClientWithGenkit(g, "googleai/gemini-test", time.Second)

	resp, err := client.Generate(ctx, &Request{Prompt: "diagnose"})
	require.NoError(t, err)
	assert.Equal(t, "Replace the battery.", resp.Text)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, fake.config.Tools)
	assert.Nil(t, fake.config.ToolConfig)
}

func TestDefineAnthropicModel(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	fake := &fakeMessager{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Reseat the RAM modules."},
		},
	}}
	DefineAnthropicModel(g, fake, "claude-test", 0)
	client := NewClientWithGenkit(g, "anthropic/claude-test", time.Second)

	resp, err := client.Generate(ctx, &Request{Prompt: "diagnose this"})
	require.NoError(t, err)
	assert.Equal(t, "Reseat the RAM modules.", resp.Text)
	assert.Equal(t, anthropic.Model("claude-test"), fake.params.Model)
	assert.Equal(t, int64(512), fake.params.MaxTokens)
	require.Len(t, fake.params.Messages, 1)
}

func TestDefineAnthropicModel_Error(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	DefineAnthropicModel(g, &fakeMessager{err: errors.New("status 429: rate limited")}, "claude-test", 64)
	client := NewClientWithGenkit(g, "anthropic/claude-test", time.Second)

	_, err := client.Generate(ctx, &Request{Prompt: "x"})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 429, llmErr.Code)
}

func TestCleanMarkdownCodeBlocks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "Check the fan.", expected: "Check the fan."},
		{name: "fenced with language", input: "```text\nCheck the fan.\n```", expected: "Check the fan."},
		{name: "fenced", input: "```\nCheck the fan.\n```", expected: "Check the fan."},
		{name: "whitespace", input: "  \n  Check the fan.  \n  ", expected: "Check the fan."},
		{name: "single line fence", input: "```Check the fan.```", expected: "Check the fan."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanMarkdownCodeBlocks(tt.input))
		})
	}
}

func TestGroundingFrom(t *testing.T) {
	assert.Nil(t, groundingFrom(nil))

	gr := groundingFrom(map[string]any{"maps": true, "location": map[string]any{"latitude": 1.5, "longitude": -2.5}})
	require.NotNil(t, gr)
	assert.True(t, gr.Maps)
	assert.Equal(t, -2.5, gr.Location.Longitude)
}

func TestSourcesFrom(t *testing.T) {
	assert.Nil(t, sourcesFrom(nil))

	out := sourcesFrom([]any{map[string]any{"uri": "https://a", "title": "A"}})
	assert.Equal(t, []Source{{URI: "https://a", Title: "A"}}, out)
}
