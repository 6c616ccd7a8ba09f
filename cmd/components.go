// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/agents"
	"github.com/xkilldash9x/leoforge/internal/batch"
	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/eventbus"
	"github.com/xkilldash9x/leoforge/internal/llmclient"
	"github.com/xkilldash9x/leoforge/internal/refinement"
	"github.com/xkilldash9x/leoforge/internal/runlog"
	"github.com/xkilldash9x/leoforge/internal/store"
	"github.com/xkilldash9x/leoforge/internal/toolchain"
)

const eventBufferSize = 64

// runStore persists finished runs.
type runStore interface {
	SaveRun(ctx context.Context, query refinement.Query, result refinement.RunResult) error
}

// components holds the services a generate or batch invocation needs.
type components struct {
	Runner   batch.Looper
	Recorder *runlog.Recorder
	Store    runStore

	logger     *zap.Logger
	llm        schemas.LLMClient
	bus        *eventbus.Bus
	reporter   *reporter
	closeStore func()
}

// componentsFactory builds the services for one invocation. Tests substitute
// their own.
type componentsFactory func(ctx context.Context, cfg config.Interface, out io.Writer, logger *zap.Logger) (*components, error)

// defaultComponents wires the production stack: the LLM router feeds the
// agents, the toolchain manager and builder own the workspace, and status
// events fan out to the console reporter and the run log.
func defaultComponents(ctx context.Context, cfg config.Interface, out io.Writer, logger *zap.Logger) (*components, error) {
	c := &components{logger: logger}

	llm, err := llmclient.NewClient(ctx, cfg.LLM(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	c.llm = llm

	admin := cfg.Aleo().AdminAddress
	var evaluator refinement.Evaluator = agents.NewCodeEvaluator(logger, llm, admin)
	if size := cfg.Evaluation().CacheSize; size > 0 {
		cached, err := agents.NewCachedEvaluator(logger, evaluator, size)
		if err != nil {
			c.Shutdown()
			return nil, err
		}
		evaluator = cached
	}

	workspaces, err := toolchain.NewManager(logger, cfg.Workspace(), cfg.Toolchain())
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to initialize workspace manager: %w", err)
	}

	c.bus = eventbus.New(logger, eventBufferSize)
	c.reporter = newReporter(out, c.bus)
	sinks := refinement.MultiSink{c.bus.Sink(eventbus.DefaultEmitTimeout)}

	if cfg.RunLog().Enabled {
		recorder, err := runlog.NewRecorder(logger, cfg.RunLog().Dir)
		if err != nil {
			c.Shutdown()
			return nil, fmt.Errorf("failed to initialize run log: %w", err)
		}
		c.Recorder = recorder
		sinks = append(sinks, recorder)
	}

	if url := cfg.Database().URL; url != "" {
		st, closeStore, err := store.Open(ctx, url, logger)
		if err != nil {
			c.Shutdown()
			return nil, fmt.Errorf("failed to connect to run history database: %w", err)
		}
		c.closeStore = closeStore
		if err := st.Migrate(ctx); err != nil {
			c.Shutdown()
			return nil, err
		}
		c.Store = st
	}

	loop, err := refinement.New(cfg.Refinement().Settings(), refinement.Collaborators{
		Designer:  agents.NewArchitect(logger, llm, admin),
		Generator: agents.NewCodeGenerator(logger, llm, admin),
		Evaluator: evaluator,
		Builder:   toolchain.NewLeoBuilder(logger, cfg.Toolchain()),
		Workspace: workspaces,
	}, refinement.WithEventSink(sinks), refinement.WithLogger(logger))
	if err != nil {
		c.Shutdown()
		return nil, err
	}
	c.Runner = loop
	return c, nil
}

// Finish records a completed run in the run log and the database, when those
// are enabled, and returns the run log path. Persistence failures are logged
// and never change the run's outcome. Interrupted runs are still saved, so the
// caller's cancellation is not passed on to the store.
func (c *components) Finish(ctx context.Context, query refinement.Query, result refinement.RunResult) string {
	ctx = context.WithoutCancel(ctx)
	var path string
	if c.Recorder != nil {
		p, err := c.Recorder.Finish(query, result)
		if err != nil {
			c.logger.Warn("Failed to write run log.", zap.String("run_id", result.RunID), zap.Error(err))
		} else {
			path = p
		}
	}
	if c.Store != nil {
		if err := c.Store.SaveRun(ctx, query, result); err != nil {
			c.logger.Warn("Failed to save run history.", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	return path
}

// Shutdown releases everything the components opened. It is safe to call on a
// partially built value.
func (c *components) Shutdown() {
	if c.bus != nil {
		c.bus.Shutdown()
	}
	if c.reporter != nil {
		c.reporter.Wait()
	}
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			c.logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}
	if c.closeStore != nil {
		c.closeStore()
	}
}
