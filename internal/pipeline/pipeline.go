// Package pipeline runs a review: ingest, gate, concurrent analysis
// branches, barrier, aggregate. The executor owns the run's state store and
// the scope that releases transient working copies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/report"
	"github.com/joescharf/codereview/internal/stage"
	"github.com/joescharf/codereview/internal/state"
	"github.com/joescharf/codereview/internal/telemetry"
	"github.com/joescharf/codereview/internal/workspace"
)

// ErrNoFiles is the terminal error of a run whose source had nothing to analyze.
var ErrNoFiles = errors.New("no files found to analyze")

// ErrAggregation wraps report failures.
var ErrAggregation = errors.New("aggregation failed")

// ErrIngestion wraps source fetch and scan failures.
var ErrIngestion = errors.New("ingestion failed")

// Ingester fetches and inventories a source.
type Ingester interface {
	Run(ctx context.Context, locator string) (ingest.Result, error)
}

// Aggregator renders the final report from the merged record.
type Aggregator interface {
	Run(ctx context.Context, rec state.Record) (report.Result, error)
}

// Decision is the outcome of the gate.
type Decision int

const (
	Proceed Decision = iota
	Halt
)

func (d Decision) String() string {
	if d == Halt {
		return "halt"
	}
	return "proceed"
}

// Decide is the gate evaluated after ingestion.
func Decide(rec *state.Record) Decision {
	if rec.Failed() || rec.FileInventory.TotalFiles == 0 {
		return Halt
	}
	return Proceed
}

// executorWriter is the only writer allowed to set the terminal error.
var executorWriter = state.Writer{
	Name: "executor",
	Keys: []state.Key{state.KeyTerminalError},
}

// Options configures an Executor.
type Options struct {
	Workspace *workspace.Manager
	Ingest    Ingester
	Analyzers []stage.Analyzer
	Report    Aggregator
	// Lenient makes the store skip invalid writes instead of rejecting them.
	Lenient bool
	// RunTimeout bounds the analysis phase. Zero means no limit.
	RunTimeout time.Duration
	Logger     *slog.Logger
}

// Executor runs the fixed review graph.
type Executor struct {
	workspace  *workspace.Manager
	ingest     Ingester
	analyzers  []stage.Analyzer
	writers    []state.Writer
	report     Aggregator
	lenient    bool
	runTimeout time.Duration
	logger     *slog.Logger

	tracer   trace.Tracer
	findings metric.Int64Counter
	duration metric.Float64Histogram
}

// New validates o and returns an executor. Analyzers must have distinct
// categories so that no two branches write the same findings key.
func New(o Options) (*Executor, error) {
	if o.Workspace == nil {
		return nil, errors.New("pipeline: workspace manager is required")
	}
	if o.Ingest == nil || o.Report == nil {
		return nil, errors.New("pipeline: ingest and report stages are required")
	}
	if len(o.Analyzers) == 0 {
		return nil, errors.New("pipeline: at least one analyzer is required")
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	writers := make([]state.Writer, len(o.Analyzers))
	for i, a := range o.Analyzers {
		writers[i] = BranchWriter(a)
	}
	all := append([]state.Writer{ingest.Writer, report.Writer, executorWriter}, writers...)
	if err := state.CheckDisjoint(all...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	meter := telemetry.Meter("")
	findings, err := meter.Int64Counter("codereview.findings",
		metric.WithDescription("Findings produced per analysis branch"))
	if err != nil {
		return nil, fmt.Errorf("pipeline: findings counter: %w", err)
	}
	duration, err := meter.Float64Histogram("codereview.stage.duration",
		metric.WithDescription("Stage wall time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage duration histogram: %w", err)
	}

	return &Executor{
		workspace:  o.Workspace,
		ingest:     o.Ingest,
		analyzers:  o.Analyzers,
		writers:    writers,
		report:     o.Report,
		lenient:    o.Lenient,
		runTimeout: o.RunTimeout,
		logger:     o.Logger,
		tracer:     telemetry.Tracer(""),
		findings:   findings,
		duration:   duration,
	}, nil
}

// BranchWriter declares the keys branch a may write: its findings key and
// the shared warnings list.
func BranchWriter(a stage.Analyzer) state.Writer {
	return state.Writer{
		Name: strings.ToLower(a.Name()),
		Keys: []state.Key{state.FindingsKey(a.Category()), state.KeyWarnings},
	}
}

// Run executes the graph for locator. The returned record is never nil.
// The error is non-nil exactly when the run halted with a terminal error.
// Transient working copies are released before Run returns, whatever the
// outcome.
func (e *Executor) Run(ctx context.Context, locator string) (*state.Record, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("codereview.locator", locator)))
	defer span.End()

	st := state.NewStore(locator, state.WithLenient(e.lenient), state.WithLogger(e.logger))
	scope := e.workspace.NewScope()
	defer scope.Close()

	logger := e.logger.With("run", st.Snapshot().RunID)
	logger.Info("review started", "locator", locator)

	// ingest
	res, err := e.runIngest(ctx, locator)
	if err != nil {
		return e.halt(ctx, st, fmt.Errorf("%w: %w", ErrIngestion, err))
	}
	scope.Adopt(res.Handle)
	if err := st.Apply(ingest.Writer, res.Update()); err != nil {
		return e.halt(ctx, st, fmt.Errorf("%w: %w", ErrIngestion, err))
	}

	// gate
	snap := st.Snapshot()
	if Decide(&snap) == Halt {
		logger.Warn("gate halted the run", "files", snap.FileInventory.TotalFiles)
		if !snap.Failed() {
			return e.halt(ctx, st, ErrNoFiles)
		}
		return e.terminal(st)
	}

	// fan-out and barrier
	e.analyze(ctx, st, stage.Input{
		WorkingDirectory: snap.WorkingDirectory,
		Inventory:        snap.FileInventory,
	})

	// aggregate
	rep, err := e.runReport(ctx, st.Snapshot())
	if err != nil {
		return e.halt(ctx, st, fmt.Errorf("%w: %w", ErrAggregation, err))
	}
	if err := st.Apply(report.Writer, rep.Update()); err != nil {
		return e.halt(ctx, st, fmt.Errorf("%w: %w", ErrAggregation, err))
	}

	rec, _ := e.terminal(st)
	logger.Info("review complete",
		"findings", rec.TotalFindings(),
		"warnings", len(rec.Warnings),
		"report", rec.ReportLocation)
	return rec, nil
}

func (e *Executor) runIngest(ctx context.Context, locator string) (ingest.Result, error) {
	ctx, done := e.startStage(ctx, "ingest")
	res, err := e.ingest.Run(ctx, locator)
	done(err)
	return res, err
}

func (e *Executor) runReport(ctx context.Context, rec state.Record) (report.Result, error) {
	ctx, done := e.startStage(ctx, "aggregate")
	res, err := e.report.Run(ctx, rec)
	done(err)
	return res, err
}

// analyze launches every branch at once and merges their outputs in
// declaration order once all of them are done.
func (e *Executor) analyze(ctx context.Context, st *state.Store, in stage.Input) {
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	outs := make([]stage.Output, len(e.analyzers))
	var g errgroup.Group
	for i, a := range e.analyzers {
		branchIn := stage.Input{
			WorkingDirectory: in.WorkingDirectory,
			Inventory:        in.Inventory.Clone(),
		}
		g.Go(func() error {
			bctx, done := e.startStage(ctx, e.writers[i].Name)
			outs[i] = stage.Run(bctx, a, branchIn)
			done(nil)
			return nil
		})
	}
	_ = g.Wait()

	for i, a := range e.analyzers {
		e.merge(ctx, st, a, e.writers[i], outs[i])
	}
}

func (e *Executor) merge(ctx context.Context, st *state.Store, a stage.Analyzer, w state.Writer, out stage.Output) {
	key := state.FindingsKey(a.Category())
	u := state.NewUpdate().Set(key, out.Findings).Warn(out.Warnings...)
	err := st.Apply(w, u)
	if err == nil && !st.Written(key) {
		// lenient mode drops the entry without an error
		err = fmt.Errorf("%s findings dropped", a.Category())
	}
	if err != nil {
		e.logger.Warn("branch output rejected", "branch", w.Name, "error", err)
		fallback := state.NewUpdate().
			Set(key, nil).
			Warn(fmt.Sprintf("%s analysis output rejected: %v", a.Name(), err))
		if err := st.Apply(w, fallback); err != nil {
			e.logger.Error("recording branch failure", "branch", w.Name, "error", err)
		}
		return
	}
	e.findings.Add(ctx, int64(len(out.Findings)),
		metric.WithAttributes(attribute.String("category", string(a.Category()))))
	e.logger.Info("branch merged", "branch", w.Name, "findings", len(out.Findings), "warnings", len(out.Warnings))
}

// halt records cause as the terminal error and finishes the run.
func (e *Executor) halt(ctx context.Context, st *state.Store, cause error) (*state.Record, error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	if st.TerminalError() == "" {
		if err := st.Apply(executorWriter, state.NewUpdate().Set(state.KeyTerminalError, cause.Error())); err != nil {
			e.logger.Error("recording terminal error", "error", err)
		}
	}
	e.logger.Error("review halted", "error", cause)
	rec := st.Snapshot()
	return &rec, cause
}

// terminal returns the final record, and an error if one was recorded.
func (e *Executor) terminal(st *state.Store) (*state.Record, error) {
	rec := st.Snapshot()
	if rec.Failed() {
		return &rec, errors.New(rec.TerminalError)
	}
	return &rec, nil
}

// startStage opens a span for a stage and returns a func that ends it and
// records its duration.
func (e *Executor) startStage(ctx context.Context, name string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "stage."+name,
		trace.WithAttributes(attribute.String("codereview.stage", name)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.duration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("stage", name)))
	}
}
