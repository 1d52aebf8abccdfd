// Package llm provides the text producers used by the analysis stages.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

// ErrNotConfigured is returned by New when no producer can be built from the
// given settings.
var ErrNotConfigured = errors.New("llm producer not configured")

// ErrEmptyResponse is returned when the service answered without any text.
var ErrEmptyResponse = errors.New("no text content in API response")

// Request is a single generation call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Producer generates free text for a prompt.
type Producer interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Name identifies provider and model, e.g. "anthropic/claude-sonnet-4-5".
	Name() string
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, req Request) (string, error)

func (f ProducerFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func (f ProducerFunc) Name() string { return "func" }

// Settings selects and configures a producer.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// New builds the producer named by s.Provider. It returns ErrNotConfigured
// for provider "none" or when a hosted provider has no API key.
func New(s Settings) (Producer, error) {
	switch s.Provider {
	case "", ProviderNone:
		return nil, ErrNotConfigured
	case ProviderAnthropic:
		if s.APIKey == "" {
			return nil, fmt.Errorf("%w: anthropic api key missing", ErrNotConfigured)
		}
		return NewAnthropicClient(s), nil
	case ProviderOpenAI:
		if s.APIKey == "" {
			return nil, fmt.Errorf("%w: openai api key missing", ErrNotConfigured)
		}
		return NewOpenAIClient(s), nil
	case ProviderOllama:
		if s.BaseURL == "" {
			s.BaseURL = "http://localhost:11434/v1"
		}
		return NewOpenAIClient(s), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
}

// CacheKey hashes the inputs that determine a response.
func CacheKey(producer string, req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s", producer, req.MaxTokens, req.System, req.Prompt)
	return hex.EncodeToString(h.Sum(nil))
}
