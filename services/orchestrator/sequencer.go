// Package orchestrator sequences the benchmark stages: it runs a strictly linear plan one
// stage at a time, threads an immutable RunContext through the stage actions and records
// the timing and outcome of every stage.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cloudbench/orchestrator"

// Request is everything a stage action may read. All fields are copies owned by the
// action for the duration of the call.
type Request struct {
	RunID     string
	Title     string
	Provider  string
	StartedAt time.Time
	Stage     StageSpec
	Context   RunContext
	Completed []StageRecord
}

// Action performs one stage and returns the outputs to merge into the RunContext.
type Action interface {
	Run(ctx context.Context, req Request) (Outputs, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, req Request) (Outputs, error)

func (f ActionFunc) Run(ctx context.Context, req Request) (Outputs, error) {
	return f(ctx, req)
}

// StageError wraps the failure of a single stage.
type StageError struct {
	Stage  string
	Action string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q (%s): %v", e.Stage, e.Action, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Sequencer runs plans against a fixed set of actions.
type Sequencer struct {
	actions map[string]Action
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithClock overrides the time source used for stage timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(newID func() string) Option {
	return func(s *Sequencer) { s.newID = newID }
}

// NewSequencer returns a Sequencer dispatching stages to actions by action name.
func NewSequencer(actions map[string]Action, logger zerolog.Logger, opts ...Option) (*Sequencer, error) {
	if len(actions) == 0 {
		return nil, errors.New("no actions registered")
	}
	s := &Sequencer{
		actions: make(map[string]Action, len(actions)),
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for name, a := range actions {
		s.actions[name] = a
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes plan one stage at a time. After the first failure the remaining stages
// stay pending, except always_run stages which still execute with the context as it was
// at the failure. The returned error is the first stage failure joined with any
// always_run failure; the report is returned in every case once the plan is valid.
func (s *Sequencer) Run(ctx context.Context, plan *Plan, initial Outputs) (*BenchmarkReport, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	runID := s.newID()
	rc, err := NewRunContext(initial).Merge(Outputs{KeyRunID: {Data: runID}})
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("cloudbench.run_id", runID),
		attribute.String("cloudbench.provider", plan.Provider),
	))
	defer span.End()

	logger := s.logger.With().Str("run_id", runID).Logger()
	startedAt := s.now().UTC()

	records := make([]*StageRecord, len(plan.Stages))
	for i, spec := range plan.Stages {
		records[i] = newStageRecord(spec)
	}

	var (
		failed string
		errs   []error
	)
	for i, spec := range plan.Stages {
		if failed != "" && !spec.AlwaysRun {
			logger.Debug().Str("stage", spec.Name).Msg("stage skipped after failure")
			continue
		}

		stageCtx := ctx
		if spec.AlwaysRun {
			stageCtx = context.WithoutCancel(ctx)
		}

		req := Request{
			RunID:     runID,
			Title:     plan.Title,
			Provider:  plan.Provider,
			StartedAt: startedAt,
			Stage:     spec,
			Context:   rc,
			Completed: snapshot(records[:i]),
		}
		next, stageErr := s.runStage(stageCtx, logger, records[i], req)
		if stageErr != nil {
			if failed == "" {
				failed = spec.Name
			}
			errs = append(errs, stageErr)
			continue
		}
		rc = next
	}

	finishedAt := s.now().UTC()
	report := &BenchmarkReport{
		RunID:       runID,
		Title:       plan.Title,
		Provider:    plan.Provider,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Total:       finishedAt.Sub(startedAt),
		Stages:      snapshot(records),
		Outputs:     rc.Public(),
		FailedStage: failed,
	}

	runErr := errors.Join(errs...)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "stage failed")
		logger.Error().Err(runErr).Str("failed_stage", failed).Dur("total", report.Total).Msg("run failed")
	} else {
		logger.Info().Dur("total", report.Total).Msg("run succeeded")
	}
	return report, runErr
}

func (s *Sequencer) runStage(ctx context.Context, logger zerolog.Logger, rec *StageRecord, req Request) (RunContext, error) {
	spec := req.Stage
	logger = logger.With().Str("stage", spec.Name).Str("action", spec.Action).Logger()

	ctx, span := s.tracer.Start(ctx, "stage "+spec.Name, trace.WithAttributes(
		attribute.String("cloudbench.stage", spec.Name),
		attribute.String("cloudbench.action", spec.Action),
	))
	defer span.End()

	if err := rec.start(s.now()); err != nil {
		return req.Context, err
	}
	logger.Info().Msg("stage started")

	next, err := s.invoke(ctx, req)
	if err != nil {
		err = &StageError{Stage: spec.Name, Action: spec.Action, Err: err}
	}
	if ferr := rec.finish(s.now(), err); ferr != nil {
		return req.Context, ferr
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		logger.Error().Err(err).Dur("duration", rec.Duration()).Msg("stage failed")
		return req.Context, err
	}
	logger.Info().Dur("duration", rec.Duration()).Msg("stage succeeded")
	return next, nil
}

func (s *Sequencer) invoke(ctx context.Context, req Request) (RunContext, error) {
	if err := ctx.Err(); err != nil {
		return req.Context, err
	}
	action, ok := s.actions[req.Stage.Action]
	if !ok {
		return req.Context, fmt.Errorf("no implementation for action %q", req.Stage.Action)
	}
	out, err := action.Run(ctx, req)
	if err != nil {
		return req.Context, err
	}
	return req.Context.Merge(out)
}

// snapshot deep-copies records so callers cannot reach the sequencer's timestamps.
func snapshot(records []*StageRecord) []StageRecord {
	out := make([]StageRecord, len(records))
	for i, r := range records {
		rec := *r
		rec.StartTime = copyTime(r.StartTime)
		rec.EndTime = copyTime(r.EndTime)
		out[i] = rec
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
