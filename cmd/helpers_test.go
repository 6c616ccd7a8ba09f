// File: cmd/helpers_test.go
package cmd

import (
	"context"
	"io"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/refinement"
	"github.com/xkilldash9x/leoforge/internal/runlog"
)

// loopFunc adapts a function to batch.Looper.
type loopFunc func(ctx context.Context, q refinement.Query) refinement.RunResult

func (f loopFunc) Run(ctx context.Context, q refinement.Query) refinement.RunResult { return f(ctx, q) }

// fakeStore records SaveRun calls.
type fakeStore struct {
	mu      sync.Mutex
	saved   []string
	ctxErrs []error
	err     error
}

func (s *fakeStore) SaveRun(ctx context.Context, _ refinement.Query, result refinement.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, result.RunID)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return s.err
}

// fakeFactory returns a components factory around loop. The config passed to
// the factory is captured in *seen when seen is not nil.
func fakeFactory(t *testing.T, loop loopFunc, logDir string, st *fakeStore, seen *config.Interface) componentsFactory {
	t.Helper()
	return func(ctx context.Context, cfg config.Interface, out io.Writer, logger *zap.Logger) (*components, error) {
		if seen != nil {
			*seen = cfg
		}
		c := &components{Runner: loop, logger: zaptest.NewLogger(t)}
		if logDir != "" {
			rec, err := runlog.NewRecorder(c.logger, logDir)
			if err != nil {
				return nil, err
			}
			c.Recorder = rec
		}
		if st != nil {
			c.Store = st
		}
		return c, nil
	}
}

func succeedingLoop(ctx context.Context, q refinement.Query) refinement.RunResult {
	return refinement.RunResult{
		RunID:           "run-" + q.Text,
		Success:         true,
		ProjectName:     q.Text,
		TotalIterations: 1,
		StopReason:      refinement.StopSucceeded,
		WorkspacePath:   "/tmp/out/" + q.Text,
		Iterations: []refinement.Iteration{
			{Number: 1, Source: "program x.aleo {}", Evaluation: refinement.EvaluationResult{Score: 8}, Success: true},
		},
	}
}
