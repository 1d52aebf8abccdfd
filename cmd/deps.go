package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/joescharf/codereview/internal/config"
	"github.com/joescharf/codereview/internal/git"
	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/pipeline"
	"github.com/joescharf/codereview/internal/report"
	"github.com/joescharf/codereview/internal/scan"
	"github.com/joescharf/codereview/internal/stage"
	"github.com/joescharf/codereview/internal/store"
	"github.com/joescharf/codereview/internal/workspace"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newProducer builds the configured text producer, wrapped with the response
// cache when it is enabled. A nil producer means static analysis only.
func newProducer(ctx context.Context, cfg config.Config) (llm.Producer, io.Closer, error) {
	p, err := llm.New(cfg.LLMSettings())
	if errors.Is(err, llm.ErrNotConfigured) {
		ui.Warning("LLM not configured (%v); reporting static analyzer results only", err)
		return nil, nopCloser{}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	ui.VerboseLog("Using %s", p.Name())

	if !cfg.Cache.Enabled {
		return p, nopCloser{}, nil
	}
	s, err := openCache(ctx, cfg.Cache.Path)
	if err != nil {
		return nil, nil, err
	}
	ui.VerboseLog("Response cache: %s", cfg.Cache.Path)
	return llm.NewCachingProducer(p, s, logger), s, nil
}

// openCache opens and migrates the response cache database.
func openCache(ctx context.Context, path string) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return s, nil
}

// newAnalyzers returns the three analysis branches in report order.
func newAnalyzers(cfg config.Config, p llm.Producer) []stage.Analyzer {
	r := stage.NewReviewer(p, logger)
	r.Policy = cfg.RetryPolicy()
	r.MaxTokens = cfg.LLM.MaxTokens
	r.Timeout = cfg.LLM.Timeout

	opts := func(maxFiles int) stage.Options {
		return stage.Options{
			MaxFiles:    maxFiles,
			Python:      cfg.Tools.Python,
			ToolTimeout: cfg.Tools.Timeout,
			Logger:      logger,
		}
	}
	return []stage.Analyzer{
		stage.NewSecurity(r, opts(cfg.MaxFiles.Security)),
		stage.NewPerformance(r, opts(cfg.MaxFiles.Performance)),
		stage.NewStyle(r, opts(cfg.MaxFiles.Style)),
	}
}

// newExecutor wires the pipeline from cfg.
func newExecutor(cfg config.Config, p llm.Producer) (*pipeline.Executor, *scan.Scanner, error) {
	ws := workspace.NewManager(cfg.WorkspaceRoot, git.NewClient(), workspace.WithLogger(logger))
	scanner := scan.New(cfg.ScanOptions(), logger)

	exec, err := pipeline.New(pipeline.Options{
		Workspace: ws,
		Ingest:    ingest.New(ws, scanner, logger),
		Analyzers: newAnalyzers(cfg, p),
		Report: report.New(cfg.OutputDir,
			report.WithJSON(cfg.ReportJSON),
			report.WithLogger(logger)),
		Lenient:    cfg.Lenient,
		RunTimeout: cfg.RunTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return exec, scanner, nil
}
