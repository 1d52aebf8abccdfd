package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/retry"
)

func TestNew(t *testing.T) {
	t.Run("none is not configured", func(t *testing.T) {
		_, err := New(Settings{Provider: ProviderNone})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("anthropic without key", func(t *testing.T) {
		_, err := New(Settings{Provider: ProviderAnthropic, Model: "claude"})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("anthropic with key", func(t *testing.T) {
		p, err := New(Settings{Provider: ProviderAnthropic, Model: "claude-x", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "anthropic/claude-x", p.Name())
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		p, err := New(Settings{Provider: ProviderOllama, Model: "llama3"})
		require.NoError(t, err)
		assert.Equal(t, "ollama/llama3", p.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Settings{Provider: "bard"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotConfigured)
	})
}

func TestCacheKey(t *testing.T) {
	req := Request{System: "sys", Prompt: "p", MaxTokens: 10}
	assert.Equal(t, CacheKey("a/m", req), CacheKey("a/m", req))
	assert.NotEqual(t, CacheKey("a/m", req), CacheKey("b/m", req))
	assert.NotEqual(t, CacheKey("a/m", req), CacheKey("a/m", Request{System: "sys", Prompt: "q", MaxTokens: 10}))
	assert.Len(t, CacheKey("a/m", req), 64)
}

func TestAnthropicClient_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-x",
			"content": [{"type": "text", "text": "[{\"file\":"}, {"type": "text", "text": " \"a.py\"}]"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(Settings{Model: "claude-x", APIKey: "k", BaseURL: srv.URL, MaxTokens: 100})
	text, err := c.Generate(context.Background(), Request{System: "be terse", Prompt: "review"})
	require.NoError(t, err)

	assert.Equal(t, `[{"file": "a.py"}]`, text, "text blocks should be joined")
	assert.Equal(t, "claude-x", got["model"])
	assert.EqualValues(t, 100, got["max_tokens"])
}

func TestAnthropicClient_BadRequestIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(Settings{Model: "claude-x", APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), Request{Prompt: "review"})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestAnthropicClient_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(Settings{Model: "claude-x", APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), Request{Prompt: "review"})
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "model": "llama3",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "[]"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Settings{Provider: ProviderOllama, Model: "llama3", BaseURL: srv.URL})
	text, err := c.Generate(context.Background(), Request{System: "sys", Prompt: "review"})
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "c1", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Settings{Model: "gpt", APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), Request{Prompt: "review"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

type memCache struct {
	data    map[string]string
	failGet bool
}

func (m *memCache) GetResponse(_ context.Context, key string) (string, bool, error) {
	if m.failGet {
		return "", false, errors.New("db locked")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) PutResponse(_ context.Context, key, _, text string) error {
	m.data[key] = text
	return nil
}

func TestCachingProducer(t *testing.T) {
	calls := 0
	next := ProducerFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		return "answer:" + req.Prompt, nil
	})
	cache := &memCache{data: map[string]string{}}
	p := NewCachingProducer(next, cache, nil)

	for range 3 {
		text, err := p.Generate(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "answer:x", text)
	}
	assert.Equal(t, 1, calls)

	_, err := p.Generate(context.Background(), Request{Prompt: "y"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachingProducer_CacheFailureFallsThrough(t *testing.T) {
	next := ProducerFunc(func(ctx context.Context, req Request) (string, error) { return "ok", nil })
	p := NewCachingProducer(next, &memCache{data: map[string]string{}, failGet: true}, nil)

	text, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestCachingProducer_ErrorsNotCached(t *testing.T) {
	cache := &memCache{data: map[string]string{}}
	next := ProducerFunc(func(ctx context.Context, req Request) (string, error) { return "", errors.New("down") })
	p := NewCachingProducer(next, cache, nil)

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Empty(t, cache.data)
}
