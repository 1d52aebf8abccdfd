package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/joescharf/codereview/internal/retry"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including a local Ollama server.
type OpenAIClient struct {
	client      *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIClient creates a client from settings.
func NewOpenAIClient(s Settings) *OpenAIClient {
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if s.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: s.Timeout}
	}
	provider := s.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		provider:    provider,
		model:       s.Model,
		maxTokens:   maxTokens,
		temperature: float32(s.Temperature),
	}
}

func (c *OpenAIClient) Name() string {
	return c.provider + "/" + c.model
}

// Generate sends a system and user message and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", classifyOpenAI(c.provider, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAI(provider string, err error) error {
	wrapped := fmt.Errorf("%s API call: %w", provider, err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && !retryableStatus(apiErr.HTTPStatusCode) {
		return retry.Permanent(wrapped)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && !retryableStatus(reqErr.HTTPStatusCode) {
		return retry.Permanent(wrapped)
	}
	return wrapped
}
