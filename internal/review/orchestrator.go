package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/osiDTDr/ai-contract-review/common/logger"
)

const DefaultStageTimeout = 90 * time.Second

// Observer is notified after every trace entry is recorded. It runs on the
// review goroutine and must not block.
type Observer func(ctx context.Context, entry TraceEntry)

type Options struct {
	// Retriever is optional; without one the pipeline has no retrieve_knowledge stage.
	Retriever Retriever
	Analyzer  Analyzer
	Checker   Checker
	// Scorer defaults to DefaultScorer().
	Scorer Scorer
	Rules  []Rule

	StageTimeout   time.Duration
	StageTimeouts  map[string]time.Duration
	DisabledStages []string

	Observer Observer
}

type Result struct {
	State State
	Trace []TraceEntry
}

// Orchestrator runs the fixed review pipeline. It holds only read-only
// configuration and may serve concurrent requests.
type Orchestrator struct {
	retriever Retriever
	analyzer  Analyzer
	checker   Checker
	scorer    Scorer
	rules     []Rule

	stageTimeout  time.Duration
	stageTimeouts map[string]time.Duration
	disabled      map[string]bool
	observer      Observer
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Analyzer == nil {
		return nil, configErrorf("an analyzer is required")
	}
	if opts.Checker == nil {
		return nil, configErrorf("a compliance checker is required")
	}
	if err := ValidateRules(opts.Rules); err != nil {
		return nil, err
	}

	scorer := opts.Scorer
	if scorer == nil {
		scorer = DefaultScorer()
	}
	if v, ok := scorer.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	disabled := make(map[string]bool, len(opts.DisabledStages))
	for _, name := range opts.DisabledStages {
		if !slices.Contains(optionalStages, name) {
			return nil, configErrorf("stage %q cannot be disabled (allowed: %s)", name, strings.Join(optionalStages, ", "))
		}
		disabled[name] = true
	}

	timeout := opts.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	for name, d := range opts.StageTimeouts {
		if d <= 0 {
			return nil, configErrorf("timeout for stage %q must be positive", name)
		}
	}

	return &Orchestrator{
		retriever:     opts.Retriever,
		analyzer:      opts.Analyzer,
		checker:       opts.Checker,
		scorer:        scorer,
		rules:         slices.Clone(opts.Rules),
		stageTimeout:  timeout,
		stageTimeouts: opts.StageTimeouts,
		disabled:      disabled,
		observer:      opts.Observer,
	}, nil
}

type runConfig struct {
	rules    []Rule
	observer Observer
}

type RunOption func(*runConfig)

// WithRules replaces the configured rule set for one review.
func WithRules(rules []Rule) RunOption {
	return func(c *runConfig) {
		c.rules = slices.Clone(rules)
	}
}

// WithObserver adds a per-request observer, called after the configured one.
func WithObserver(o Observer) RunOption {
	return func(c *runConfig) {
		c.observer = o
	}
}

// Stages lists the stage names this orchestrator runs, in order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, 0, 6)
	for _, s := range o.pipeline(o.rules) {
		names = append(names, s.Name)
	}
	return names
}

func (o *Orchestrator) pipeline(rules []Rule) []Stage {
	stages := []Stage{parseStage()}
	if o.retriever != nil {
		stages = append(stages, retrieveStage(o.retriever))
	}
	return append(stages,
		analyzeStage(o.analyzer),
		complianceStage(o.checker, rules),
		scoreStage(o.scorer),
		finalizeStage(),
	)
}

// Review runs the pipeline over text. The returned Result is never nil: on
// failure it carries the partial state and the trace up to and including the
// failing stage.
func (o *Orchestrator) Review(ctx context.Context, text string, opts ...RunOption) (*Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "review.orchestrator"})

	cfg := runConfig{rules: o.rules}
	for _, opt := range opts {
		opt(&cfg)
	}

	rec := NewRecorder()
	st := State{Text: text}
	result := func() *Result {
		final := st.Clone()
		return &Result{State: final, Trace: rec.Entries()}
	}

	if strings.TrimSpace(text) == "" {
		slog.WarnContext(ctx, "review rejected: empty document")
		return result(), ErrDocumentEmpty
	}
	if err := ValidateRules(cfg.rules); err != nil {
		return result(), err
	}

	span := logger.StartSpan(ctx, "review.run")
	defer span.End()
	ctx = span.Context()

	stages := o.pipeline(cfg.rules)
	slog.InfoContext(ctx, "review started",
		"stages", len(stages),
		"rules", len(cfg.rules),
		"text_runes", len([]rune(text)))

	start := time.Now()
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "review cancelled before stage", "next_stage", stage.Name, "error", err)
			span.RecordError(err)
			return result(), &CanceledError{Stage: stage.Name, Err: err}
		}

		var entry TraceEntry
		var err error
		if o.disabled[stage.Name] {
			entry = o.skip(ctx, stage)
		} else {
			entry, err = o.runStage(ctx, &st, stage)
		}

		rec.Append(entry)
		o.notify(ctx, cfg.observer, entry)

		if err != nil {
			var inv *InvariantViolation
			if errors.As(err, &inv) {
				slog.ErrorContext(ctx, "invariant violated", "stage", stage.Name, "field", inv.Field, "reason", inv.Reason)
			}
			span.RecordError(err)
			span.SetAttributes(attribute.String("review.failed_stage", stage.Name))
			return result(), err
		}
	}

	score := -1
	if st.Score != nil {
		score = *st.Score
	}
	span.SetAttributes(
		attribute.Int("review.score", score),
		attribute.Int("review.risks", len(st.Risks)),
		attribute.Int("review.findings", len(st.Compliance)),
	)
	slog.InfoContext(ctx, "review completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"score", score,
		"risks", len(st.Risks),
		"findings", len(st.Compliance))

	return result(), nil
}

func (o *Orchestrator) notify(ctx context.Context, perRequest Observer, entry TraceEntry) {
	if o.observer != nil {
		o.observer(ctx, entry.clone())
	}
	if perRequest != nil {
		perRequest(ctx, entry.clone())
	}
}

func (o *Orchestrator) skip(ctx context.Context, stage Stage) TraceEntry {
	slog.InfoContext(ctx, "stage skipped", "stage", stage.Name)
	return TraceEntry{
		StageName: stage.Name,
		Status:    StatusSkipped,
		StartedAt: time.Now().UTC(),
	}
}

func (o *Orchestrator) timeoutFor(name string) time.Duration {
	if d, ok := o.stageTimeouts[name]; ok {
		return d
	}
	return o.stageTimeout
}

type stageOutcome struct {
	delta Delta
	err   error
}

// runStage executes one stage under its own timeout and applies its delta.
// The stage runs on its own goroutine so a stage that ignores ctx cannot
// hold the review past its deadline; a late result is dropped.
func (o *Orchestrator) runStage(ctx context.Context, st *State, stage Stage) (TraceEntry, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: &stage.Name})
	span := logger.StartSpan(ctx, "review.stage."+stage.Name)
	defer span.End()

	stageCtx, cancel := context.WithTimeout(span.Context(), o.timeoutFor(stage.Name))
	defer cancel()

	entry := TraceEntry{StageName: stage.Name, StartedAt: time.Now().UTC()}
	start := time.Now()
	slog.DebugContext(ctx, "stage started")

	view := st.Clone()
	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageOutcome{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		d, err := stage.Run(stageCtx, view)
		done <- stageOutcome{delta: d, err: err}
	}()

	var out stageOutcome
	select {
	case out = <-done:
	case <-stageCtx.Done():
		out.err = stageCtx.Err()
	}

	err := out.err
	if err == nil {
		err = st.apply(stage.Name, stage.Writes, out.delta)
	}
	entry.DurationMs = time.Since(start).Milliseconds()

	// apply leaves st untouched on error, so a failed entry shows the
	// state the review halted with.
	entry.Snapshot = make(map[Field]any, len(stage.Snapshot))
	for _, f := range stage.Snapshot {
		entry.Snapshot[f] = st.value(f)
	}

	if err != nil {
		err = o.classify(ctx, stage.Name, err)
		entry.Status = StatusFailed
		entry.Error = err.Error()
		span.RecordError(err)
		slog.ErrorContext(ctx, "stage failed",
			"duration_ms", entry.DurationMs,
			"error", err)
		return entry, err
	}

	entry.Status = StatusCompleted
	span.SetAttributes(attribute.String("review.stage.status", string(StatusCompleted)))
	slog.InfoContext(ctx, "stage completed",
		"duration_ms", entry.DurationMs)
	return entry, nil
}

// classify keeps typed errors as they are. An error while the request's
// own context has ended is a cancellation; anything else, including a stage
// timeout, is a dependency failure.
func (o *Orchestrator) classify(ctx context.Context, stage string, err error) error {
	var (
		inv *InvariantViolation
		cfg *ConfigurationError
		dep *DependencyError
	)
	switch {
	case errors.As(err, &inv), errors.As(err, &cfg), errors.As(err, &dep):
		return err
	case ctx.Err() != nil:
		return &CanceledError{Stage: stage, Err: err}
	default:
		return &DependencyError{Stage: stage, Err: err}
	}
}
