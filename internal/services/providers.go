package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/animastudio/aihub/internal/config"
	"github.com/animastudio/aihub/pkg/logger"
)

// ProviderResult carries the raw outcome of one backend call before the
// dispatcher turns it into a GenerationResponse.
type ProviderResult struct {
	Content    string
	TokensUsed int
}

// ProviderClient is the capability interface every generation backend
// implements. Implementations must honor ctx cancellation and deadlines.
type ProviderClient interface {
	Backend() Backend
	Generate(ctx context.Context, req *GenerationRequest) (*ProviderResult, error)
}

// newProviderClient builds the live client for a backend. The dispatcher
// swaps this factory for test doubles.
func newProviderClient(backend Backend, cfg config.BackendConfig) ProviderClient {
	switch backend {
	case BackendOpenAI:
		return &openAIClient{cfg: cfg}
	case BackendClaude:
		return &claudeClient{cfg: cfg}
	case BackendGemini:
		return &geminiClient{cfg: cfg}
	case BackendOllama:
		return &ollamaClient{cfg: cfg}
	default:
		return &FakeClient{Name: backend}
	}
}

// estimateTokens approximates token usage when a backend reports none.
func estimateTokens(content string) int {
	return len(content) / 4
}

// --- OpenAI ---

type openAIClient struct {
	cfg config.BackendConfig
}

func (c *openAIClient) Backend() Backend { return BackendOpenAI }

func (c *openAIClient) Generate(ctx context.Context, req *GenerationRequest) (*ProviderResult, error) {
	clientConfig := openai.DefaultConfig(c.cfg.APIKey)
	if c.cfg.BaseURL != "" {
		clientConfig.BaseURL = c.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateTokens(content)
	}
	logger.Debugf("[AI] OpenAI response: %d chars, %d tokens", len(content), tokens)

	return &ProviderResult{Content: content, TokensUsed: tokens}, nil
}

// --- Claude ---

type claudeClient struct {
	cfg config.BackendConfig
}

func (c *claudeClient) Backend() Backend { return BackendClaude }

func (c *claudeClient) Generate(ctx context.Context, req *GenerationRequest) (*ProviderResult, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(c.cfg.APIKey),
	)

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	tokens := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	if tokens == 0 {
		tokens = estimateTokens(content.String())
	}
	logger.Debugf("[AI] Claude response: %d chars, %d tokens", content.Len(), tokens)

	return &ProviderResult{Content: content.String(), TokensUsed: tokens}, nil
}

// --- Gemini ---

type geminiClient struct {
	cfg config.BackendConfig
}

func (c *geminiClient) Backend() Backend { return BackendGemini }

func (c *geminiClient) Generate(ctx context.Context, req *GenerationRequest) (*ProviderResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: c.cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	content := resp.Text()
	tokens := estimateTokens(content)
	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	logger.Debugf("[AI] Gemini response: %d chars, %d tokens", len(content), tokens)

	return &ProviderResult{Content: content, TokensUsed: tokens}, nil
}

// --- Ollama ---

type ollamaClient struct {
	cfg config.BackendConfig
}

func (c *ollamaClient) Backend() Backend { return BackendOllama }

func (c *ollamaClient) Generate(ctx context.Context, req *GenerationRequest) (*ProviderResult, error) {
	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	var content strings.Builder
	var tokens int
	err = client.Chat(ctx, &api.ChatRequest{
		Model: req.Model,
		Messages: []api.Message{
			{Role: "user", Content: req.Prompt},
		},
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			tokens = resp.PromptEvalCount + resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama API error: %w", err)
	}

	if tokens == 0 {
		tokens = estimateTokens(content.String())
	}
	logger.Debugf("[AI] Ollama response: %d chars, %d tokens", content.Len(), tokens)

	return &ProviderResult{Content: content.String(), TokensUsed: tokens}, nil
}

// --- Fake ---

// FakeClient is a deterministic zero-cost backend. It serves both as the
// built-in fallback when no real backend is configured and as the test
// double for dispatcher tests.
type FakeClient struct {
	Name Backend
}

func (c *FakeClient) Backend() Backend {
	if c.Name == "" {
		return BackendFake
	}
	return c.Name
}

func (c *FakeClient) Generate(ctx context.Context, req *GenerationRequest) (*ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := fmt.Sprintf(
		"<!-- generated animation: %s -->\n"+
			"<div class=\"animation-container\">\n"+
			"  <div class=\"animated-element\">%s</div>\n"+
			"</div>\n"+
			"<style>\n"+
			".animated-element { animation: pulse 3s ease-in-out infinite; }\n"+
			"@keyframes pulse { 0%%, 100%% { transform: scale(1); } 50%% { transform: scale(1.2); } }\n"+
			"</style>",
		req.Prompt, req.Prompt)

	return &ProviderResult{Content: content, TokensUsed: estimateTokens(content)}, nil
}
