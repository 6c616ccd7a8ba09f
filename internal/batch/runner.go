package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// Looper runs one query to completion. *refinement.Loop satisfies it.
type Looper interface {
	Run(ctx context.Context, query refinement.Query) refinement.RunResult
}

// ResultFunc is called once per finished job. It may be called from several
// goroutines at once.
type ResultFunc func(job Job, result refinement.RunResult)

// Outcome pairs a job with its run result. Skipped jobs never started because
// the batch was stopped first.
type Outcome struct {
	Job     Job
	Result  refinement.RunResult
	Skipped bool
}

// Runner executes batch jobs with bounded concurrency. Each job gets its own
// run, so the loop's workspace must hand out distinct directories.
type Runner struct {
	loop        Looper
	logger      *zap.Logger
	concurrency int
	failFast    bool
	onResult    ResultFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithFailFast stops launching jobs after the first unsuccessful run.
func WithFailFast(failFast bool) RunnerOption {
	return func(r *Runner) { r.failFast = failFast }
}

// WithResultFunc registers a callback for finished jobs.
func WithResultFunc(fn ResultFunc) RunnerOption {
	return func(r *Runner) { r.onResult = fn }
}

// NewRunner creates a runner. Concurrency below one is treated as one.
func NewRunner(logger *zap.Logger, loop Looper, concurrency int, opts ...RunnerOption) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	r := &Runner{
		loop:        loop,
		logger:      logger.Named("batch"),
		concurrency: concurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes jobs and returns one outcome per job, in input order. The
// error is non-nil when fail-fast tripped or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))
	for i, j := range jobs {
		outcomes[i] = Outcome{Job: j, Skipped: true}
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	r.logger.Info("Starting batch.", zap.Int("jobs", len(jobs)), zap.Int("concurrency", r.concurrency))

	for i, job := range jobs {
		if groupCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may have been granted after the batch was stopped.
			if groupCtx.Err() != nil {
				return nil
			}
			r.logger.Info("Job started.", zap.String("job", job.Label()))
			result := r.loop.Run(groupCtx, job.ToQuery())
			outcomes[i] = Outcome{Job: job, Result: result}
			if r.onResult != nil {
				r.onResult(job, result)
			}

			r.logger.Info("Job finished.",
				zap.String("job", job.Label()),
				zap.Bool("success", result.Success),
				zap.String("stop_reason", string(result.StopReason)))
			if r.failFast && !result.Success {
				return fmt.Errorf("job %q stopped with %s", job.Label(), result.StopReason)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, fmt.Errorf("batch stopped early: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// Summary counts outcomes by kind.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Summarize tallies a batch.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			s.Skipped++
		case o.Result.Success:
			s.Succeeded++
		default:
			s.Failed++
		}
	}
	return s
}
