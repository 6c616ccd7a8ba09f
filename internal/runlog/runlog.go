// internal/runlog/runlog.go
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error types recorded in a run log.
const (
	ErrorTypeBuild      = "build"
	ErrorTypeEvaluation = "evaluation"
	ErrorTypeRun        = "run"
)

// ErrorEntry is one problem observed during a run.
type ErrorEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	IterationNumber int       `json:"iteration_number"`
	ErrorType       string    `json:"error_type"`
	ErrorMessage    string    `json:"error_message"`
	Context         string    `json:"context,omitempty"`
}

// IterationSummary condenses one iteration for quick inspection.
type IterationSummary struct {
	Number      int                    `json:"number"`
	Score       float64                `json:"score"`
	BuildStatus refinement.BuildStatus `json:"build_status,omitempty"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration"`
}

// Record is the JSON document written for every finished run.
type Record struct {
	RunID          string                `json:"run_id"`
	ProjectName    string                `json:"project_name"`
	Query          string                `json:"query"`
	StartTime      time.Time             `json:"start_time"`
	EndTime        time.Time             `json:"end_time"`
	Success        bool                  `json:"success"`
	StopReason     refinement.StopReason `json:"stop_reason"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	WorkspacePath  string                `json:"workspace_path,omitempty"`
	Iterations     []IterationSummary    `json:"iterations"`
	ErrorLogs      []ErrorEntry          `json:"error_logs"`
	CodeVersions   []string              `json:"code_versions"`
	ResolutionPath []string              `json:"resolution_path"`
}

// Recorder collects the resolution path of runs from their status events and
// writes one JSON record per run when it finishes. It is safe for concurrent
// runs.
type Recorder struct {
	logger *zap.Logger
	dir    string
	now    func() time.Time

	mu    sync.Mutex
	steps map[string][]string
}

// NewRecorder creates the log directory if needed.
func NewRecorder(logger *zap.Logger, dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	return &Recorder{
		logger: logger.Named("runlog"),
		dir:    dir,
		now:    time.Now,
		steps:  make(map[string][]string),
	}, nil
}

// Dir is the directory run logs are written to.
func (r *Recorder) Dir() string { return r.dir }

// Emit implements refinement.EventSink.
func (r *Recorder) Emit(e refinement.Event) {
	step := describe(e)
	if step == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[e.RunID] = append(r.steps[e.RunID], step)
}

func describe(e refinement.Event) string {
	switch e.Kind {
	case refinement.EventDesignComplete:
		return fmt.Sprintf("design: project %s", e.Message)
	case refinement.EventGenerationComplete:
		return fmt.Sprintf("iteration %d: source generated", e.Iteration)
	case refinement.EventEvaluationComplete:
		return fmt.Sprintf("iteration %d: scored %.1f", e.Iteration, e.Score)
	case refinement.EventBuildComplete:
		return fmt.Sprintf("iteration %d: build %s", e.Iteration, e.Message)
	case refinement.EventSuccess, refinement.EventAbandoned, refinement.EventError:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return ""
}

// Finish writes the record for a completed run and returns its path.
func (r *Recorder) Finish(query refinement.Query, result refinement.RunResult) (string, error) {
	r.mu.Lock()
	steps := r.steps[result.RunID]
	delete(r.steps, result.RunID)
	r.mu.Unlock()

	record := NewRecord(query, result, r.now())
	record.ResolutionPath = append(record.ResolutionPath, steps...)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run log: %w", err)
	}
	path := filepath.Join(r.dir, FileName(result.ProjectName, result.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write run log: %w", err)
	}
	r.logger.Info("Run log saved.", zap.String("path", path), zap.String("run_id", result.RunID))
	return path, nil
}

// NewRecord derives the log record from a run result. ResolutionPath is left
// empty for the caller to fill.
func NewRecord(query refinement.Query, result refinement.RunResult, end time.Time) Record {
	record := Record{
		RunID:          result.RunID,
		ProjectName:    result.ProjectName,
		Query:          query.Text,
		StartTime:      end.Add(-result.TotalDuration),
		EndTime:        end,
		Success:        result.Success,
		StopReason:     result.StopReason,
		ErrorMessage:   result.ErrorMessage,
		WorkspacePath:  result.WorkspacePath,
		Iterations:     make([]IterationSummary, 0, len(result.Iterations)),
		ErrorLogs:      []ErrorEntry{},
		CodeVersions:   make([]string, 0, len(result.Iterations)),
		ResolutionPath: []string{},
	}

	for _, it := range result.Iterations {
		summary := IterationSummary{Number: it.Number, Score: it.Evaluation.Score, Success: it.Success, Duration: it.Duration}
		record.CodeVersions = append(record.CodeVersions, string(it.Source))

		if it.Evaluation.HasErrors {
			for _, f := range it.Evaluation.MissingFeatures {
				record.ErrorLogs = append(record.ErrorLogs, ErrorEntry{
					Timestamp: end, IterationNumber: it.Number, ErrorType: ErrorTypeEvaluation,
					ErrorMessage: "Missing feature: " + f,
					Context:      fmt.Sprintf("Evaluation score: %.1f", it.Evaluation.Score),
				})
			}
			for _, issue := range it.Evaluation.SecurityIssues {
				record.ErrorLogs = append(record.ErrorLogs, ErrorEntry{
					Timestamp: end, IterationNumber: it.Number, ErrorType: ErrorTypeEvaluation,
					ErrorMessage: "Security issue: " + issue,
					Context:      "Security concern",
				})
			}
		}
		if it.Build != nil {
			summary.BuildStatus = it.Build.Status
			for _, e := range it.Build.Errors {
				record.ErrorLogs = append(record.ErrorLogs, ErrorEntry{
					Timestamp: end, IterationNumber: it.Number, ErrorType: ErrorTypeBuild,
					ErrorMessage: e,
					Context:      "Build status: " + string(it.Build.Status),
				})
			}
		}
		record.Iterations = append(record.Iterations, summary)
	}

	if result.ErrorMessage != "" {
		record.ErrorLogs = append(record.ErrorLogs, ErrorEntry{
			Timestamp: end, IterationNumber: len(result.Iterations), ErrorType: ErrorTypeRun,
			ErrorMessage: result.ErrorMessage,
			Context:      "Stop reason: " + string(result.StopReason),
		})
	}
	return record
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileName is the run log file name for a project and run.
func FileName(projectName, runID string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(projectName, "_"), "_.")
	if name == "" {
		name = "run"
	}
	return fmt.Sprintf("%s_%s.json", name, runID)
}

// Load reads a single run log.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode run log %s: %w", path, err)
	}
	return &record, nil
}

// Find locates the log for runID in dir.
func Find(dir, runID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*_"+runID+".json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no run log found for run %s in %s", runID, dir)
	}
	return matches[0], nil
}

// Recent returns up to limit run logs from dir, newest first. Unreadable
// files are skipped.
func Recent(dir string, limit int) ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	type entry struct {
		path string
		mod  time.Time
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: p, mod: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.After(entries[j].mod) })

	var records []Record
	for _, e := range entries {
		if limit > 0 && len(records) >= limit {
			break
		}
		record, err := Load(e.path)
		if err != nil {
			continue
		}
		records = append(records, *record)
	}
	return records, nil
}
