// Package ingest resolves a source locator to a working copy and inventories
// the files to review.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/scan"
	"github.com/joescharf/codereview/internal/state"
	"github.com/joescharf/codereview/internal/workspace"
)

// Writer declares the record keys ingestion may set.
var Writer = state.Writer{
	Name: "ingest",
	Keys: []state.Key{
		state.KeySourceKind,
		state.KeyWorkingDirectory,
		state.KeyFileInventory,
	},
}

// Result is a successfully ingested source. When Handle is transient the
// caller owns it and must hand it to a run scope or release it.
type Result struct {
	Handle    workspace.Handle
	Inventory models.FileInventory
}

// Update is the record update for a successful ingestion.
func (r Result) Update() *state.Update {
	return state.NewUpdate().
		Set(state.KeySourceKind, r.Handle.Kind).
		Set(state.KeyWorkingDirectory, r.Handle.Path).
		Set(state.KeyFileInventory, r.Inventory)
}

// Stage fetches and scans a source.
type Stage struct {
	workspace *workspace.Manager
	scanner   *scan.Scanner
	logger    *slog.Logger
}

// New creates an ingestion stage.
func New(m *workspace.Manager, s *scan.Scanner, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{workspace: m, scanner: s, logger: logger}
}

// Run acquires locator and scans it. If scanning fails a transient copy is
// released before returning, so a failed ingestion leaves nothing behind.
func (s *Stage) Run(ctx context.Context, locator string) (Result, error) {
	s.logger.Info("starting ingestion", "locator", locator)

	h, err := s.workspace.Acquire(ctx, locator)
	if err != nil {
		return Result{}, fmt.Errorf("fetch source: %w", err)
	}

	inv, err := s.scanner.Scan(ctx, h.Path)
	if err != nil {
		if h.Transient {
			s.workspace.Release(h.Path, false)
		}
		return Result{}, fmt.Errorf("scan %s: %w", h.Path, err)
	}

	s.logger.Info("ingestion complete",
		"kind", h.Kind,
		"files", inv.TotalFiles,
		"size_mb", fmt.Sprintf("%.2f", inv.TotalSizeMB()))
	for _, ec := range inv.TopExtensions(5) {
		s.logger.Debug("extension", "ext", ec.Extension, "files", ec.Count)
	}
	return Result{Handle: h, Inventory: inv}, nil
}
