package llm

import (
	"context"
	"log/slog"
)

// Cache stores generated text by request hash.
type Cache interface {
	GetResponse(ctx context.Context, key string) (string, bool, error)
	PutResponse(ctx context.Context, key, producer, text string) error
}

// CachingProducer answers repeated identical requests from a Cache. Cache
// failures are logged and never fail the call.
type CachingProducer struct {
	Next   Producer
	Cache  Cache
	Logger *slog.Logger
}

// NewCachingProducer wraps next with cache.
func NewCachingProducer(next Producer, cache Cache, logger *slog.Logger) *CachingProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingProducer{Next: next, Cache: cache, Logger: logger}
}

func (p *CachingProducer) Name() string { return p.Next.Name() }

func (p *CachingProducer) Generate(ctx context.Context, req Request) (string, error) {
	key := CacheKey(p.Next.Name(), req)
	text, ok, err := p.Cache.GetResponse(ctx, key)
	if err != nil {
		p.Logger.Warn("response cache read failed", "error", err)
	} else if ok {
		p.Logger.Debug("response cache hit", "producer", p.Next.Name())
		return text, nil
	}

	text, err = p.Next.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if err := p.Cache.PutResponse(ctx, key, p.Next.Name(), text); err != nil {
		p.Logger.Warn("response cache write failed", "error", err)
	}
	return text, nil
}
