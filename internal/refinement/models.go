// internal/refinement/models.go
package refinement

import (
	"fmt"
	"strings"
	"time"
)

// Query is the user's free-text request. It is never mutated once a run starts.
type Query struct {
	Text        string   `json:"text"`
	Category    string   `json:"category,omitempty"` // Optional hint such as "token" or "nft".
	Constraints []string `json:"constraints,omitempty"`
}

// Design is the structured project description produced once per run by the
// Designer. It seeds generation, repair prompts and evaluation.
type Design struct {
	ProjectName           string   `json:"project_name"`
	Category              string   `json:"category"`
	Description           string   `json:"description"`
	Features              []string `json:"features"`
	TechnicalRequirements []string `json:"technical_requirements,omitempty"`
	DataStructures        []string `json:"data_structures,omitempty"`
	Transitions           []string `json:"transitions,omitempty"`
	SecurityNotes         []string `json:"security_notes,omitempty"`
	AdminFeatures         []string `json:"admin_features,omitempty"`
	RequiresAdmin         bool     `json:"requires_admin"`
}

// SourceText is the program text produced by one round. Each round supersedes
// the previous value rather than editing it.
type SourceText string

// EvaluationResult is the Evaluator's verdict on one round's source. A low
// score is data, never an error.
type EvaluationResult struct {
	Score                   float64  `json:"score"` // 0-10.
	IsComplete              bool     `json:"is_complete"`
	HasErrors               bool     `json:"has_errors"`
	MissingFeatures         []string `json:"missing_features,omitempty"`
	Improvements            []string `json:"improvements,omitempty"`
	SecurityIssues          []string `json:"security_issues,omitempty"`
	OptimizationSuggestions []string `json:"optimization_suggestions,omitempty"`
}

// BuildStatus classifies a build attempt.
type BuildStatus string

const (
	BuildSuccess          BuildStatus = "success"
	BuildCompileError     BuildStatus = "compile-error"
	BuildTimeout          BuildStatus = "timeout"
	BuildToolchainMissing BuildStatus = "toolchain-missing"
)

// ErrorDetail is one compiler error broken into its message, source location
// and the compiler's suggestion, when present.
type ErrorDetail struct {
	Message    string `json:"message"`
	Location   string `json:"location,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// BuildOutcome records a single invocation of the native toolchain.
type BuildOutcome struct {
	Status    BuildStatus   `json:"status"`
	Success   bool          `json:"success"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Details   []ErrorDetail `json:"details,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Artifacts []string      `json:"artifacts,omitempty"` // Paths relative to the workspace build/ directory.
}

// Diagnostics is the feedback a failed build hands to the next repair round.
type Diagnostics struct {
	Status   BuildStatus   `json:"status"`
	Stderr   string        `json:"stderr,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Details  []ErrorDetail `json:"details,omitempty"`
}

// Diagnostics extracts the repair feedback from a build outcome.
func (b BuildOutcome) Diagnostics() Diagnostics {
	return Diagnostics{
		Status:   b.Status,
		Stderr:   b.Stderr,
		Errors:   append([]string(nil), b.Errors...),
		Warnings: append([]string(nil), b.Warnings...),
		Details:  append([]ErrorDetail(nil), b.Details...),
	}
}

// String renders diagnostics for inclusion in a prompt. Raw stderr is
// preferred because it carries the compiler's own context lines.
func (d Diagnostics) String() string {
	if s := strings.TrimSpace(d.Stderr); s != "" {
		return s
	}
	if len(d.Errors) > 0 {
		return strings.Join(d.Errors, "\n")
	}
	return fmt.Sprintf("build finished with status %s and no diagnostics", d.Status)
}

// Iteration is the immutable record of one round.
type Iteration struct {
	Number     int              `json:"number"`
	Source     SourceText       `json:"source"`
	Evaluation EvaluationResult `json:"evaluation"`
	Build      *BuildOutcome    `json:"build,omitempty"` // Nil when the build gate was not cleared.
	Success    bool             `json:"success"`
	Duration   time.Duration    `json:"duration"`
}

// StopReason says why a run ended.
type StopReason string

const (
	StopSucceeded     StopReason = "succeeded"
	StopMaxIterations StopReason = "max_iterations"
	StopAbandoned     StopReason = "abandoned"
	StopFatal         StopReason = "fatal"
	StopCancelled     StopReason = "cancelled"
)

// RunResult is created once, when a run terminates.
type RunResult struct {
	RunID           string        `json:"run_id"`
	Success         bool          `json:"success"`
	ProjectName     string        `json:"project_name"`
	FinalSource     SourceText    `json:"final_source,omitempty"`
	Iterations      []Iteration   `json:"iterations"`
	TotalIterations int           `json:"total_iterations"`
	TotalDuration   time.Duration `json:"total_duration"`
	StopReason      StopReason    `json:"stop_reason"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	WorkspacePath   string        `json:"workspace_path,omitempty"`
}

// LastIteration returns the most recent iteration, if any.
func (r RunResult) LastIteration() (Iteration, bool) {
	if len(r.Iterations) == 0 {
		return Iteration{}, false
	}
	return r.Iterations[len(r.Iterations)-1], true
}

// WorkspaceHandle identifies the directory exclusively owned by one run.
type WorkspaceHandle struct {
	ProjectName string `json:"project_name"`
	Path        string `json:"path"`
}
