// internal/toolchain/builder.go
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// waitDelay bounds how long Build waits for output pipes after the process
// is killed.
const waitDelay = 2 * time.Second

// LeoBuilder implements refinement.Builder by running `leo build` in the
// workspace.
type LeoBuilder struct {
	logger *zap.Logger
	binary string
}

// NewLeoBuilder creates a builder for the configured toolchain binary.
func NewLeoBuilder(logger *zap.Logger, cfg config.ToolchainConfig) *LeoBuilder {
	binary := cfg.Binary
	if binary == "" {
		binary = "leo"
	}
	return &LeoBuilder{logger: logger.Named("builder"), binary: binary}
}

// Build compiles the workspace. Compile errors, a timeout and a missing
// toolchain are reported in the outcome; the error return is reserved for an
// unusable workspace, a process that could not be started, or cancellation of
// ctx.
func (b *LeoBuilder) Build(ctx context.Context, ws refinement.WorkspaceHandle, timeout time.Duration) (refinement.BuildOutcome, error) {
	start := time.Now()

	if info, err := os.Stat(ws.Path); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return refinement.BuildOutcome{}, &refinement.BuildError{Err: fmt.Errorf("workspace %q is not accessible: %w", ws.Path, err)}
	}

	bin, err := exec.LookPath(b.binary)
	if err != nil {
		b.logger.Warn("Leo toolchain not found.", zap.String("binary", b.binary), zap.Error(err))
		return refinement.BuildOutcome{
			Status:  refinement.BuildToolchainMissing,
			Errors:  []string{ErrToolchainMissing.Error()},
			Elapsed: time.Since(start),
		}, nil
	}

	buildCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(buildCtx, bin, "build")
	cmd.Dir = ws.Path
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	outcome := refinement.BuildOutcome{
		Stdout:  StripANSI(stdout.String()),
		Stderr:  StripANSI(stderr.String()),
		Elapsed: time.Since(start),
	}

	if ctx.Err() != nil {
		return outcome, &refinement.BuildError{Err: fmt.Errorf("build interrupted: %w", ctx.Err())}
	}
	if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
		outcome.Status = refinement.BuildTimeout
		outcome.Errors = []string{fmt.Sprintf("Build timeout after %s", timeout)}
		b.logger.Warn("Build timed out.", zap.String("path", ws.Path), zap.Duration("timeout", timeout))
		return outcome, nil
	}

	// Leo reports diagnostics on either stream depending on version.
	diagnostics := outcome.Stderr + "\n" + outcome.Stdout
	outcome.Errors, outcome.Warnings = SplitDiagnostics(diagnostics)

	if runErr == nil {
		outcome.Status = refinement.BuildSuccess
		outcome.Success = true
		outcome.Artifacts, err = listArtifacts(filepath.Join(ws.Path, buildDirName))
		if err != nil {
			b.logger.Warn("Failed to list build artifacts.", zap.String("path", ws.Path), zap.Error(err))
		}
		// A successful build may still print words like "0 errors".
		outcome.Errors = nil
		return outcome, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return outcome, &refinement.BuildError{Err: fmt.Errorf("failed to run %s build: %w", b.binary, runErr)}
	}

	outcome.Status = refinement.BuildCompileError
	outcome.Details = ParseErrorDetails(diagnostics)
	if len(outcome.Errors) == 0 {
		outcome.Errors = []string{fmt.Sprintf("leo build exited with code %d", exitErr.ExitCode())}
	}
	return outcome, nil
}

// listArtifacts returns every file under dir, relative to dir, in lexical
// order.
func listArtifacts(dir string) ([]string, error) {
	var artifacts []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, filepath.ToSlash(rel))
		return nil
	})
	return artifacts, err
}
