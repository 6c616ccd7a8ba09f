// internal/toolchain/workspace_test.go
package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/leoforge/internal/config"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

func newTestManager(t *testing.T, binary string, history bool) *Manager {
	t.Helper()
	m, err := NewManager(zaptest.NewLogger(t),
		config.WorkspaceConfig{OutputDir: t.TempDir(), Entrypoint: "src/main.leo", TrackHistory: history},
		config.ToolchainConfig{Binary: binary})
	require.NoError(t, err)
	return m
}

func TestManager_CreateScaffoldsProject(t *testing.T) {
	m := newTestManager(t, fakeLeo(t, scaffoldScript), false)

	ws, err := m.Create(context.Background(), "simple_token")
	require.NoError(t, err)
	defer m.Release(ws)

	assert.Equal(t, "simple_token", ws.ProjectName)
	assert.Equal(t, filepath.Join(m.OutputDir(), "simple_token"), ws.Path)
	assert.True(t, filepath.IsAbs(ws.Path))

	src, err := m.Read(ws)
	require.NoError(t, err)
	assert.Contains(t, string(src), "program simple_token.aleo")
}

func TestManager_CreateReusesExistingDirectory(t *testing.T) {
	// A toolchain that always fails proves `leo new` is not invoked.
	m := newTestManager(t, fakeLeo(t, "exit 1"), false)
	existing := filepath.Join(m.OutputDir(), "existing")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	ws, err := m.Create(context.Background(), "existing")
	require.NoError(t, err)
	assert.Equal(t, existing, ws.Path)
}

func TestManager_CreateRejectsConcurrentOwner(t *testing.T) {
	m := newTestManager(t, fakeLeo(t, scaffoldScript), false)

	ws, err := m.Create(context.Background(), "shared")
	require.NoError(t, err)

	_, err = m.Create(context.Background(), "shared")
	var wsErr *refinement.WorkspaceError
	require.ErrorAs(t, err, &wsErr)
	assert.Equal(t, "create", wsErr.Op)
	assert.Contains(t, err.Error(), "already in use")

	m.Release(ws)
	_, err = m.Create(context.Background(), "shared")
	assert.NoError(t, err, "a released workspace can be claimed again")
}

func TestManager_CreateFailures(t *testing.T) {
	t.Run("toolchain missing", func(t *testing.T) {
		m := newTestManager(t, filepath.Join(t.TempDir(), "no-such-leo"), false)
		_, err := m.Create(context.Background(), "token")

		var wsErr *refinement.WorkspaceError
		require.ErrorAs(t, err, &wsErr)
		assert.ErrorIs(t, err, ErrToolchainMissing)

		// The failed claim is released.
		m.mu.Lock()
		defer m.mu.Unlock()
		assert.Empty(t, m.inUse)
	})

	t.Run("leo new fails", func(t *testing.T) {
		m := newTestManager(t, fakeLeo(t, `echo "disk full" >&2; exit 3`), false)
		_, err := m.Create(context.Background(), "token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("leo new creates nothing", func(t *testing.T) {
		m := newTestManager(t, fakeLeo(t, "exit 0"), false)
		_, err := m.Create(context.Background(), "token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "did not create")
	})

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		t.Run("invalid name "+name, func(t *testing.T) {
			m := newTestManager(t, fakeLeo(t, scaffoldScript), false)
			_, err := m.Create(context.Background(), name)
			var wsErr *refinement.WorkspaceError
			assert.ErrorAs(t, err, &wsErr)
		})
	}
}

func TestManager_SaveIsIdempotent(t *testing.T) {
	m := newTestManager(t, fakeLeo(t, scaffoldScript), false)
	ws, err := m.Create(context.Background(), "token")
	require.NoError(t, err)

	source := refinement.SourceText("program token.aleo {\\n    transition a() {}{}\\n\\n\\n\\n}")
	require.NoError(t, m.Save(context.Background(), ws, source))

	path := filepath.Join(ws.Path, "src", "main.leo")
	first, err := os.Stat(path)
	require.NoError(t, err)
	content, err := m.Read(ws)
	require.NoError(t, err)
	assert.Equal(t, "program token.aleo {\n    transition a() {}\n{}\n\n}\n", string(content))

	require.NoError(t, m.Save(context.Background(), ws, source))
	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime(), "identical content is not rewritten")
}

func TestManager_SaveFailures(t *testing.T) {
	m := newTestManager(t, fakeLeo(t, scaffoldScript), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Save(ctx, refinement.WorkspaceHandle{Path: t.TempDir()}, "x"), context.Canceled)

	// The entrypoint's parent is a regular file, so the write must fail.
	blocked := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(blocked, "src"), []byte("file"), 0o644))
	err := m.Save(context.Background(), refinement.WorkspaceHandle{Path: blocked}, "program x.aleo {}")
	var wsErr *refinement.WorkspaceError
	require.ErrorAs(t, err, &wsErr)
	assert.Equal(t, "save", wsErr.Op)
}

func TestManager_HistoryTracksVersions(t *testing.T) {
	m := newTestManager(t, fakeLeo(t, scaffoldScript), true)
	ws, err := m.Create(context.Background(), "tracked")
	require.NoError(t, err)

	require.NoError(t, m.Save(context.Background(), ws, "program tracked.aleo {}"))
	require.NoError(t, m.Save(context.Background(), ws, "program tracked.aleo {}"))
	require.NoError(t, m.Save(context.Background(), ws, "program tracked.aleo {\n}"))

	snapshots, err := m.History(ws)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "tracked: version 2", snapshots[0].Message)
	assert.Equal(t, "tracked: version 1", snapshots[1].Message)
}

func TestManager_HistoryDisabled(t *testing.T) {
	m := newTestManager(t, fakeLeo(t, scaffoldScript), false)
	snapshots, err := m.History(refinement.WorkspaceHandle{Path: t.TempDir()})
	assert.NoError(t, err)
	assert.Nil(t, snapshots)
}

func TestManager_Clean(t *testing.T) {
	m := newTestManager(t, fakeLeo(t, scaffoldScript), false)
	ws := refinement.WorkspaceHandle{Path: t.TempDir()}
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Path, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.Path, "build", "main.aleo"), []byte("x"), 0o644))

	require.NoError(t, m.Clean(ws))
	assert.NoDirExists(t, filepath.Join(ws.Path, "build"))
	assert.NoError(t, m.Clean(ws), "cleaning twice is harmless")
}

func TestNormalizeSource(t *testing.T) {
	tests := map[string]string{
		"":                           "",
		"  program a.aleo {}  ":      "program a.aleo {}\n",
		"a\r\nb":                     "a\nb\n",
		`line1\nline2`:               "line1\nline2\n",
		"a\n\n\n\n\nb":               "a\n\nb\n",
		"struct A {}{}":              "struct A {}\n{}\n",
		"program a.aleo {\n}\n\n\n":  "program a.aleo {\n}\n",
	}
	for in, want := range tests {
		got := NormalizeSource(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, NormalizeSource(got), "normalization is idempotent for %q", in)
	}
}
