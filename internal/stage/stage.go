// Package stage implements the analysis branches run by the pipeline. Each
// branch reads a snapshot of the working copy and returns its findings as a
// value; branches never touch the shared run state.
package stage

import (
	"context"
	"fmt"

	"github.com/joescharf/codereview/internal/models"
)

// Input is the read-only view a branch receives.
type Input struct {
	WorkingDirectory string
	Inventory        models.FileInventory
}

// Output is what a branch hands back for merging.
type Output struct {
	Findings []models.Finding
	Warnings []string
}

// Analyzer is one analysis branch.
type Analyzer interface {
	// Name is the human label used in warnings, e.g. "Security".
	Name() string
	Category() models.Category
	Analyze(ctx context.Context, in Input) (Output, error)
}

// Run calls a at the branch boundary. Errors and panics never escape: they
// become a single warning and an empty, non-nil finding list.
func Run(ctx context.Context, a Analyzer, in Input) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(a, fmt.Errorf("panic: %v", r))
		}
	}()

	out, err := a.Analyze(ctx, in)
	if err != nil {
		return failed(a, err)
	}
	if out.Findings == nil {
		out.Findings = []models.Finding{}
	}
	return out
}

func failed(a Analyzer, err error) Output {
	return Output{
		Findings: []models.Finding{},
		Warnings: []string{fmt.Sprintf("%s analysis failed: %v", a.Name(), err)},
	}
}
