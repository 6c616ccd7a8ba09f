// internal/toolchain/workspace.go
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

const (
	defaultEntrypoint = "src/main.leo"
	buildDirName      = "build"
)

// ErrToolchainMissing is returned when the Leo CLI cannot be found.
var ErrToolchainMissing = errors.New("Leo CLI not found; install Leo first")

// Manager implements refinement.Workspace on top of `leo new` projects in a
// shared output directory. Each project directory is owned by at most one run
// at a time.
type Manager struct {
	logger     *zap.Logger
	outputDir  string
	entrypoint string
	binary     string
	history    *History

	mu       sync.Mutex
	inUse    map[string]struct{}
	versions map[string]int
}

// NewManager creates a workspace manager. History snapshots are recorded only
// when cfg.TrackHistory is set.
func NewManager(logger *zap.Logger, cfg config.WorkspaceConfig, tc config.ToolchainConfig) (*Manager, error) {
	outputDir, err := homedir.Expand(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output directory: %w", err)
	}
	if outputDir, err = filepath.Abs(outputDir); err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	entrypoint := cfg.Entrypoint
	if entrypoint == "" {
		entrypoint = defaultEntrypoint
	}
	binary := tc.Binary
	if binary == "" {
		binary = "leo"
	}

	m := &Manager{
		logger:     logger.Named("workspace"),
		outputDir:  outputDir,
		entrypoint: filepath.FromSlash(entrypoint),
		binary:     binary,
		inUse:      make(map[string]struct{}),
		versions:   make(map[string]int),
	}
	if cfg.TrackHistory {
		m.history = NewHistory(m.logger)
	}
	return m, nil
}

// OutputDir is the absolute directory holding every project.
func (m *Manager) OutputDir() string { return m.outputDir }

// Create claims the project directory, scaffolding it with `leo new` when it
// does not exist yet.
func (m *Manager) Create(ctx context.Context, projectName string) (refinement.WorkspaceHandle, error) {
	if err := validateProjectName(projectName); err != nil {
		return refinement.WorkspaceHandle{}, &refinement.WorkspaceError{Op: "create", Err: err}
	}
	path := filepath.Join(m.outputDir, projectName)
	ws := refinement.WorkspaceHandle{ProjectName: projectName, Path: path}

	if err := m.claim(path); err != nil {
		return refinement.WorkspaceHandle{}, &refinement.WorkspaceError{Op: "create", Path: path, Err: err}
	}
	if err := m.scaffold(ctx, ws); err != nil {
		m.Release(ws)
		return refinement.WorkspaceHandle{}, &refinement.WorkspaceError{Op: "create", Path: path, Err: err}
	}

	if m.history != nil {
		if err := m.history.Init(path); err != nil {
			m.logger.Warn("Workspace history disabled for this run.", zap.String("path", path), zap.Error(err))
		}
	}
	return ws, nil
}

func (m *Manager) claim(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inUse[path]; busy {
		return fmt.Errorf("workspace is already in use by another run")
	}
	m.inUse[path] = struct{}{}
	return nil
}

// Release implements refinement.Releaser.
func (m *Manager) Release(ws refinement.WorkspaceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inUse, ws.Path)
}

func (m *Manager) scaffold(ctx context.Context, ws refinement.WorkspaceHandle) error {
	if info, err := os.Stat(ws.Path); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", ws.Path)
		}
		m.logger.Info("Reusing existing workspace.", zap.String("path", ws.Path))
		return nil
	}

	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	bin, err := exec.LookPath(m.binary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrToolchainMissing, err)
	}

	cmd := exec.CommandContext(ctx, bin, "new", ws.ProjectName)
	cmd.Dir = m.outputDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("leo new failed: %w. Output: %s", err, strings.TrimSpace(string(output)))
	}
	if _, err := os.Stat(ws.Path); err != nil {
		return fmt.Errorf("leo new did not create %s: %w", ws.Path, err)
	}
	m.logger.Info("Created workspace.", zap.String("path", ws.Path))
	return nil
}

// Save writes normalized source to the entrypoint. Writing content identical
// to what is on disk is a no-op.
func (m *Manager) Save(ctx context.Context, ws refinement.WorkspaceHandle, source refinement.SourceText) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(ws.Path, m.entrypoint)
	content := []byte(NormalizeSource(string(source)))

	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, content) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &refinement.WorkspaceError{Op: "save", Path: target, Err: err}
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return &refinement.WorkspaceError{Op: "save", Path: target, Err: err}
	}

	if m.history != nil {
		m.snapshot(ws)
	}
	return nil
}

func (m *Manager) snapshot(ws refinement.WorkspaceHandle) {
	m.mu.Lock()
	m.versions[ws.Path]++
	version := m.versions[ws.Path]
	m.mu.Unlock()

	message := fmt.Sprintf("%s: version %d", ws.ProjectName, version)
	if _, err := m.history.Snapshot(ws.Path, filepath.ToSlash(m.entrypoint), message); err != nil {
		m.logger.Warn("Failed to record workspace snapshot.", zap.String("path", ws.Path), zap.Error(err))
	}
}

// Read returns the persisted entrypoint source.
func (m *Manager) Read(ws refinement.WorkspaceHandle) (refinement.SourceText, error) {
	content, err := os.ReadFile(filepath.Join(ws.Path, m.entrypoint))
	if err != nil {
		return "", fmt.Errorf("failed to read workspace source: %w", err)
	}
	return refinement.SourceText(content), nil
}

// Clean removes build artifacts from the workspace.
func (m *Manager) Clean(ws refinement.WorkspaceHandle) error {
	if err := os.RemoveAll(filepath.Join(ws.Path, buildDirName)); err != nil {
		return fmt.Errorf("failed to clean workspace: %w", err)
	}
	return nil
}

// History returns the snapshots recorded for ws, or nil when tracking is off.
func (m *Manager) History(ws refinement.WorkspaceHandle) ([]Snapshot, error) {
	if m.history == nil {
		return nil, nil
	}
	return m.history.Log(ws.Path)
}

var (
	escapedNewline = strings.NewReplacer(`\n`, "\n")
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// NormalizeSource repairs common formatting damage in model output:
// escaped newlines, runs of blank lines and blocks glued together as "}{".
func NormalizeSource(source string) string {
	s := strings.ReplaceAll(source, "\r\n", "\n")
	s = escapedNewline.Replace(s)
	s = strings.ReplaceAll(s, "}{", "}\n{")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return s + "\n"
}

func validateProjectName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("project name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid project name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("project name %q must not contain path separators", name)
	}
	return nil
}
