// internal/refinement/interfaces.go
package refinement

import (
	"context"
	"time"
)

// Designer turns a free-text query into a structured Design.
type Designer interface {
	// Design fails with a *DesignError when the query cannot be interpreted.
	Design(ctx context.Context, query Query) (Design, error)
}

// Generator produces program source from a design, or repairs a previous
// round's source using build diagnostics.
type Generator interface {
	Generate(ctx context.Context, design Design) (SourceText, error)
	Repair(ctx context.Context, design Design, source SourceText, diag Diagnostics) (SourceText, error)
}

// Evaluator scores source text against the design. It only returns an error
// when the evaluation service itself fails.
type Evaluator interface {
	Evaluate(ctx context.Context, source SourceText, design Design) (EvaluationResult, error)
}

// Builder invokes the native toolchain inside a workspace. Compile failures,
// timeouts and a missing toolchain are reported in the BuildOutcome; the error
// return is reserved for infrastructure failures.
type Builder interface {
	Build(ctx context.Context, ws WorkspaceHandle, timeout time.Duration) (BuildOutcome, error)
}

// Workspace owns the build-ready directory for a run.
type Workspace interface {
	Create(ctx context.Context, projectName string) (WorkspaceHandle, error)
	// Save overwrites the entrypoint with source. Saving identical text twice
	// leaves the workspace unchanged.
	Save(ctx context.Context, ws WorkspaceHandle, source SourceText) error
}

// Releaser is implemented by workspaces that track exclusive ownership. The
// loop releases the handle when the run ends.
type Releaser interface {
	Release(ws WorkspaceHandle)
}

// EventSink receives status notifications. It must not block for long and its
// behavior never influences the loop's decisions.
type EventSink interface {
	Emit(event Event)
}

// Collaborators bundles the loop's dependencies.
type Collaborators struct {
	Designer  Designer
	Generator Generator
	Evaluator Evaluator
	Builder   Builder
	Workspace Workspace
}
