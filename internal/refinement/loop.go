// internal/refinement/loop.go
package refinement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxScore is the top of the evaluation scale.
	MaxScore = 10.0

	DefaultMaxIterations  = 5
	DefaultBuildThreshold = 5.0
	DefaultAbandonFloor   = 3.0
	DefaultBuildTimeout   = 60 * time.Second
)

// Settings holds the loop's decision thresholds. Scores use the 0-10 scale.
type Settings struct {
	MaxIterations int
	// BuildThreshold is the build gate: a round is compiled only when its
	// score is at least this value.
	BuildThreshold float64
	// AbandonFloor stops the run early when a round scores below it.
	AbandonFloor float64
	BuildTimeout time.Duration
}

// DefaultSettings returns the thresholds used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:  DefaultMaxIterations,
		BuildThreshold: DefaultBuildThreshold,
		AbandonFloor:   DefaultAbandonFloor,
		BuildTimeout:   DefaultBuildTimeout,
	}
}

// Validate checks the settings for sane values.
func (s Settings) Validate() error {
	if s.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be a positive integer")
	}
	if s.BuildThreshold < 0 || s.BuildThreshold > MaxScore {
		return fmt.Errorf("build_threshold must be between 0 and %.0f", MaxScore)
	}
	if s.AbandonFloor < 0 || s.AbandonFloor > s.BuildThreshold {
		return fmt.Errorf("abandon_floor must be between 0 and build_threshold (%.1f)", s.BuildThreshold)
	}
	if s.BuildTimeout <= 0 {
		return fmt.Errorf("build_timeout must be a positive duration")
	}
	return nil
}

// Loop is the refinement control loop. A Loop holds no per-run state and may
// be reused for sequential or concurrent runs, provided the Workspace hands
// out distinct directories.
type Loop struct {
	settings Settings
	deps     Collaborators
	sink     EventSink
	logger   *zap.Logger
	now      func() time.Time
	newRunID func() string
}

// Option configures a Loop.
type Option func(*Loop)

// WithEventSink attaches a status sink.
func WithEventSink(sink EventSink) Option {
	return func(l *Loop) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithLogger sets the loop's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(l *Loop) {
		if next != nil {
			l.newRunID = next
		}
	}
}

// New validates the settings and dependencies and builds a Loop.
func New(settings Settings, deps Collaborators, opts ...Option) (*Loop, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid refinement settings: %w", err)
	}
	switch {
	case deps.Designer == nil:
		return nil, errors.New("refinement loop requires a Designer")
	case deps.Generator == nil:
		return nil, errors.New("refinement loop requires a Generator")
	case deps.Evaluator == nil:
		return nil, errors.New("refinement loop requires an Evaluator")
	case deps.Builder == nil:
		return nil, errors.New("refinement loop requires a Builder")
	case deps.Workspace == nil:
		return nil, errors.New("refinement loop requires a Workspace")
	}

	l := &Loop{
		settings: settings,
		deps:     deps,
		sink:     nopSink{},
		logger:   zap.NewNop(),
		now:      time.Now,
		newRunID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("refinement")
	return l, nil
}

// Settings returns the loop's thresholds.
func (l *Loop) Settings() Settings { return l.settings }

// run carries the mutable state of a single Run call.
type run struct {
	id      string
	start   time.Time
	project string
	result  RunResult
	log     *zap.Logger
}

// Run executes one complete refinement run. It never returns an error: every
// outcome, including fatal collaborator failures, is reported in RunResult.
func (l *Loop) Run(ctx context.Context, query Query) RunResult {
	r := &run{
		id:      l.newRunID(),
		start:   l.now(),
		project: fallbackProjectName(query.Text),
	}
	r.log = l.logger.With(zap.String("run_id", r.id))
	r.result = RunResult{RunID: r.id, ProjectName: r.project, Iterations: []Iteration{}}

	l.emit(r, Event{Kind: EventRunStart, Message: query.Text})
	r.log.Info("Starting refinement run.",
		zap.Int("max_iterations", l.settings.MaxIterations),
		zap.Float64("build_threshold", l.settings.BuildThreshold),
		zap.Float64("abandon_floor", l.settings.AbandonFloor))

	l.execute(ctx, r, query)

	r.result.TotalIterations = len(r.result.Iterations)
	r.result.TotalDuration = l.now().Sub(r.start)
	r.log.Info("Refinement run finished.",
		zap.Bool("success", r.result.Success),
		zap.String("stop_reason", string(r.result.StopReason)),
		zap.Int("iterations", r.result.TotalIterations),
		zap.Duration("duration", r.result.TotalDuration))
	l.emit(r, Event{Kind: EventRunComplete, Success: r.result.Success, Message: string(r.result.StopReason)})
	return r.result
}

func (l *Loop) execute(ctx context.Context, r *run, query Query) {
	l.emit(r, Event{Kind: EventDesignStart})
	design, err := l.deps.Designer.Design(ctx, query)
	if err != nil {
		l.fail(ctx, r, asDesignError(err))
		return
	}
	r.project = design.ProjectName
	r.result.ProjectName = design.ProjectName
	l.emit(r, Event{Kind: EventDesignComplete, Message: design.ProjectName})
	r.log.Info("Design complete.", zap.String("project", design.ProjectName), zap.Int("features", len(design.Features)))

	ws, err := l.deps.Workspace.Create(ctx, design.ProjectName)
	if err != nil {
		l.fail(ctx, r, asWorkspaceError(err, "create"))
		return
	}
	r.result.WorkspacePath = ws.Path
	if rel, ok := l.deps.Workspace.(Releaser); ok {
		defer rel.Release(ws)
	}
	r.log.Info("Workspace ready.", zap.String("path", ws.Path))

	var prev *Iteration
	for i := 1; i <= l.settings.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			l.fail(ctx, r, fmt.Errorf("run cancelled before iteration %d: %w", i, err))
			return
		}

		it, err := l.round(ctx, r, i, design, ws, prev)
		if err != nil {
			l.fail(ctx, r, err)
			return
		}
		r.result.Iterations = append(r.result.Iterations, it)
		r.result.FinalSource = it.Source
		prev = &r.result.Iterations[len(r.result.Iterations)-1]
		l.emit(r, Event{Kind: EventIterationComplete, Iteration: i, Score: it.Evaluation.Score, Success: it.Success})

		if it.Success {
			r.result.Success = true
			r.result.StopReason = StopSucceeded
			l.emit(r, Event{Kind: EventSuccess, Iteration: i, Score: it.Evaluation.Score, Success: true,
				Message: fmt.Sprintf("project built successfully in %d iteration(s)", i)})
			return
		}
		if i == l.settings.MaxIterations {
			r.result.StopReason = StopMaxIterations
			r.log.Warn("Reached maximum iterations without a successful build.", zap.Int("iterations", i))
			return
		}
		if it.Evaluation.Score < l.settings.AbandonFloor {
			r.result.StopReason = StopAbandoned
			msg := fmt.Sprintf("score %.1f is below the abandon floor %.1f", it.Evaluation.Score, l.settings.AbandonFloor)
			r.log.Warn("Code quality too low, stopping iterations.", zap.Float64("score", it.Evaluation.Score))
			l.emit(r, Event{Kind: EventAbandoned, Iteration: i, Score: it.Evaluation.Score, Message: msg})
			return
		}
	}
}

// round executes one iteration. A panic inside a collaborator is converted
// into a fatal error so the run still produces a RunResult.
func (l *Loop) round(ctx context.Context, r *run, i int, design Design, ws WorkspaceHandle, prev *Iteration) (it Iteration, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected panic during iteration %d: %v", i, p)
		}
	}()

	started := l.now()
	log := r.log.With(zap.Int("iteration", i))

	l.emit(r, Event{Kind: EventGenerationStart, Iteration: i})
	var source SourceText
	switch {
	case prev == nil:
		log.Info("Generating initial code.")
		source, err = l.deps.Generator.Generate(ctx, design)
	case prev.Build != nil:
		log.Info("Repairing code from build diagnostics.", zap.String("previous_status", string(prev.Build.Status)))
		source, err = l.deps.Generator.Repair(ctx, design, prev.Source, prev.Build.Diagnostics())
	default:
		// The previous round never reached the build gate, so there is no
		// diagnostic feedback to repair from.
		log.Info("Regenerating code without build feedback.")
		source, err = l.deps.Generator.Generate(ctx, design)
	}
	if err != nil {
		return Iteration{}, asGenerationError(err, prev != nil && prev.Build != nil)
	}
	l.emit(r, Event{Kind: EventGenerationComplete, Iteration: i})

	if err := l.deps.Workspace.Save(ctx, ws, source); err != nil {
		return Iteration{}, asWorkspaceError(err, "save")
	}

	eval, err := l.deps.Evaluator.Evaluate(ctx, source, design)
	if err != nil {
		return Iteration{}, asEvaluationError(err)
	}
	l.emit(r, Event{Kind: EventEvaluationComplete, Iteration: i, Score: eval.Score,
		Message: fmt.Sprintf("complete=%t has_errors=%t", eval.IsComplete, eval.HasErrors)})
	log.Info("Evaluation complete.", zap.Float64("score", eval.Score), zap.Bool("complete", eval.IsComplete))

	var build *BuildOutcome
	if eval.Score >= l.settings.BuildThreshold {
		l.emit(r, Event{Kind: EventBuildStart, Iteration: i, Score: eval.Score})
		outcome, err := l.deps.Builder.Build(ctx, ws, l.settings.BuildTimeout)
		if err != nil {
			var be *BuildError
			if !errors.As(err, &be) {
				err = &BuildError{Err: err}
			}
			return Iteration{}, err
		}
		build = &outcome
		l.emit(r, Event{Kind: EventBuildComplete, Iteration: i, Score: eval.Score, Success: outcome.Success,
			Message: string(outcome.Status)})
		log.Info("Build complete.", zap.String("status", string(outcome.Status)),
			zap.Duration("elapsed", outcome.Elapsed), zap.Int("errors", len(outcome.Errors)))
	} else {
		log.Info("Score below build gate, skipping build.", zap.Float64("score", eval.Score))
	}

	return Iteration{
		Number:     i,
		Source:     source,
		Evaluation: eval,
		Build:      build,
		Success:    build != nil && build.Success,
		Duration:   l.now().Sub(started),
	}, nil
}

func (l *Loop) fail(ctx context.Context, r *run, err error) {
	r.result.Success = false
	r.result.ErrorMessage = err.Error()
	r.result.StopReason = StopFatal
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		r.result.StopReason = StopCancelled
	}
	r.log.Error("Refinement run aborted.", zap.Error(err), zap.Int("completed_iterations", len(r.result.Iterations)))
	l.emit(r, Event{Kind: EventError, Iteration: len(r.result.Iterations), Message: err.Error()})
}

// emit stamps and forwards an event. A panicking sink is logged and ignored.
func (l *Loop) emit(r *run, e Event) {
	e.RunID = r.id
	e.ProjectName = r.project
	e.Time = l.now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("Event sink panicked.", zap.String("kind", string(e.Kind)), zap.Any("panic", p))
		}
	}()
	l.sink.Emit(e)
}

func asDesignError(err error) error {
	var de *DesignError
	if errors.As(err, &de) {
		return err
	}
	return &DesignError{Err: err}
}

func asGenerationError(err error, repair bool) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Repair: repair, Err: err}
}

func asEvaluationError(err error) error {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return err
	}
	return &EvaluationError{Err: err}
}

func asWorkspaceError(err error, op string) error {
	var we *WorkspaceError
	if errors.As(err, &we) {
		return err
	}
	return &WorkspaceError{Op: op, Err: err}
}

// fallbackProjectName labels a run before the design has named the project.
func fallbackProjectName(text string) string {
	runes := []rune(text)
	if len(runes) <= 20 {
		return string(runes)
	}
	return string(runes[:20]) + "..."
}
