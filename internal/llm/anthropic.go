package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/codereview/internal/retry"
)

// AnthropicClient wraps the Anthropic messages API.
type AnthropicClient struct {
	api         *anthropic.Client
	model       anthropic.Model
	maxTokens   int
	temperature float64
}

// NewAnthropicClient creates a client from settings. Retries are left to the
// caller, so the SDK's own retry loop is disabled.
func NewAnthropicClient(s Settings) *AnthropicClient {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if s.APIKey != "" {
		opts = append(opts, option.WithAPIKey(s.APIKey))
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if s.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(s.Timeout))
	}
	client := anthropic.NewClient(opts...)
	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		api:         &client,
		model:       anthropic.Model(s.Model),
		maxTokens:   maxTokens,
		temperature: s.Temperature,
	}
}

func (c *AnthropicClient) Name() string {
	return ProviderAnthropic + "/" + string(c.model)
}

// Generate sends one message and joins the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropic(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// classifyAnthropic marks client errors other than rate limiting as
// permanent so they are not retried.
func classifyAnthropic(err error) error {
	wrapped := fmt.Errorf("anthropic API call: %w", err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && !retryableStatus(apiErr.StatusCode) {
		return retry.Permanent(wrapped)
	}
	return wrapped
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 || code == 0
}
