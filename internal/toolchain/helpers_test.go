// internal/toolchain/helpers_test.go
package toolchain

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeLeo writes an executable shell script standing in for the Leo CLI and
// returns its absolute path.
func fakeLeo(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "leo")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

// scaffoldScript handles `leo new <name>` like the real CLI.
const scaffoldScript = `if [ "$1" = "new" ]; then
  mkdir -p "$2/src" || exit 1
  printf 'program %s.aleo {\n}\n' "$2" > "$2/src/main.leo"
  echo "Created project $2"
  exit 0
fi
echo "unexpected command $1" >&2
exit 2`
