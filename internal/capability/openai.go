package capability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "google/gemini-2.5-flash"
)

const systemPrompt = "You are a precise localization engine. Always answer with a single JSON object and nothing else."

// OpenAIGenerator talks to any OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	name        string
	temperature float32
}

// NewOpenAIGenerator targets api.openai.com unless baseURL is set.
func NewOpenAIGenerator(apiKey, baseURL, model string, temperature float32, timeout time.Duration) *OpenAIGenerator {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return newOpenAICompatible("openai", apiKey, baseURL, model, temperature, timeout)
}

// NewOpenRouterGenerator targets OpenRouter's OpenAI-compatible API.
func NewOpenRouterGenerator(apiKey, baseURL, model string, temperature float32, timeout time.Duration) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return newOpenAICompatible("openrouter", apiKey, baseURL, model, temperature, timeout)
}

func newOpenAICompatible(name, apiKey, baseURL, model string, temperature float32, timeout time.Duration) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		name:        name,
		temperature: temperature,
	}
}

func (g *OpenAIGenerator) Name() string { return g.name + ":" + g.model }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", g.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
