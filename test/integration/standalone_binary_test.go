package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBinary compiles cmd/volscan into a temp dir and returns its path.
func buildBinary(t *testing.T) string {
	t.Helper()
	gomod, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err, "go env GOMOD")
	root := filepath.Dir(strings.TrimSpace(string(gomod)))
	require.NotEqual(t, ".", root, "not inside a module")

	bin := filepath.Join(t.TempDir(), "volscan")
	build := exec.Command("go", "build", "-o", bin, "./cmd/volscan")
	build.Dir = root
	out, err := build.CombinedOutput()
	require.NoError(t, err, "go build:\n%s", out)
	return bin
}

// runOutside runs the binary from an empty directory with isolated XDG
// paths so no repo config or .env is picked up.
func runOutside(t *testing.T, bin string, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	cmd := exec.Command(bin, args...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(),
		"XDG_CONFIG_HOME="+filepath.Join(home, "config"),
		"XDG_DATA_HOME="+filepath.Join(home, "data"),
		"VOLSCAN_ENV_FILE="+filepath.Join(home, "none.env"),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func TestStandaloneBinaryRunsOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-only exec test")
	}
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)

	out, err := runOutside(t, bin, "version")
	require.NoError(t, err, out)
	assert.True(t, strings.HasPrefix(out, "volscan "), out)

	out, err = runOutside(t, bin, "version", "--extended")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Gofulmen:")

	out, err = runOutside(t, bin, "--help")
	require.NoError(t, err, out)
	for _, sub := range []string{"request", "rate-limit", "serve", "watch"} {
		assert.Contains(t, out, sub)
	}

	// No workloads are configured, so request must fail cleanly.
	out, err = runOutside(t, bin, "request", "--profile", "quotes")
	require.Error(t, err)
	assert.NotContains(t, out, "panic:")
}
