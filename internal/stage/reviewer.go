package stage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/codereview/internal/extract"
	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/retry"
)

// Reviewer sends one file to a text producer and turns the reply into
// findings. The retry policy wraps the Generate call and nothing else.
type Reviewer struct {
	Producer  llm.Producer
	Extractor *extract.Extractor
	Policy    retry.Policy
	MaxTokens int
	// Timeout bounds a single Generate attempt. Zero leaves it to the producer.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewReviewer returns a Reviewer using the default retry policy.
func NewReviewer(p llm.Producer, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{
		Producer:  p,
		Extractor: extract.New(logger),
		Policy:    retry.DefaultPolicy(),
		MaxTokens: 8192,
		Logger:    logger,
	}
}

// Enabled reports whether a producer is configured.
func (r *Reviewer) Enabled() bool {
	return r != nil && r.Producer != nil
}

// Review asks the producer about file and normalizes the findings in its
// reply. skipped counts reply elements that were not usable findings.
func (r *Reviewer) Review(ctx context.Context, c models.Category, system, prompt, file string) (findings []models.Finding, skipped int, err error) {
	req := llm.Request{System: system, Prompt: prompt, MaxTokens: r.MaxTokens}

	text, err := retry.Value(ctx, r.Policy, func(ctx context.Context) (string, error) {
		if r.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.Timeout)
			defer cancel()
		}
		return r.Producer.Generate(ctx, req)
	}, func(err error, wait time.Duration) {
		r.logger().Warn("text producer call failed, retrying",
			"category", c, "file", file, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("review %s: %w", file, err)
	}

	items := r.extractor().ExtractList(text)
	findings, skipped = models.NormalizeAll(c, items, file)
	return findings, skipped, nil
}

func (r *Reviewer) extractor() *extract.Extractor {
	if r.Extractor == nil {
		return extract.New(r.logger())
	}
	return r.Extractor
}

func (r *Reviewer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
