// internal/refinement/errors.go
package refinement

import "fmt"

// DesignError reports that the Designer could not produce a design.
type DesignError struct {
	Err error
}

func (e *DesignError) Error() string { return fmt.Sprintf("design failed: %v", e.Err) }
func (e *DesignError) Unwrap() error { return e.Err }

// GenerationError reports a failure of the generation service.
type GenerationError struct {
	Repair bool
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Repair {
		return fmt.Sprintf("code repair failed: %v", e.Err)
	}
	return fmt.Sprintf("code generation failed: %v", e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }

// EvaluationError reports a failure of the evaluation service.
type EvaluationError struct {
	Err error
}

func (e *EvaluationError) Error() string { return fmt.Sprintf("evaluation failed: %v", e.Err) }
func (e *EvaluationError) Unwrap() error { return e.Err }

// WorkspaceError reports a failure creating or writing the workspace.
type WorkspaceError struct {
	Op   string // "create" or "save".
	Path string
	Err  error
}

func (e *WorkspaceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("workspace %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("workspace %s failed for %s: %v", e.Op, e.Path, e.Err)
}
func (e *WorkspaceError) Unwrap() error { return e.Err }

// BuildError reports an infrastructure failure while invoking the builder,
// as opposed to a failed compilation.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("build infrastructure failure: %v", e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }
