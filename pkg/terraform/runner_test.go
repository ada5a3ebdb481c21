package terraform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBinary installs an executable shell script named terraform at the front
// of PATH, so LookPath resolves the stub ahead of any real binary. System bin
// directories stay on PATH so the stub's shell can find tools like wc.
func stubBinary(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "terraform")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("PATH", dir+":/usr/bin:/bin")
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner("terraform")
	require.NoError(t, err)
	r.sleep = func(time.Duration) {}
	return r
}

func TestNewRunner_FallsBackToTofu(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tofu"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir)

	r, err := NewRunner("terraform")
	require.NoError(t, err)
	assert.Equal(t, "tofu", r.BinaryName())
}

func TestNewRunner_NoBinaryFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := NewRunner("terraform")
	assert.Error(t, err)
}

func TestCheckVersion(t *testing.T) {
	stubBinary(t, `echo '{"terraform_version":"1.7.5"}'`)
	r := newTestRunner(t)
	assert.NoError(t, r.CheckVersion(context.Background()))
}

func TestCheckVersion_TooOld(t *testing.T) {
	stubBinary(t, `echo '{"terraform_version":"0.12.31"}'`)
	r := newTestRunner(t)
	err := r.CheckVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0.12.31")
}

func TestRunOperation_PlanWithDiff(t *testing.T) {
	stubBinary(t, `
case "$1" in
  init) echo "Initializing..."; exit 0 ;;
  plan) echo "Plan: 1 to add, 0 to change, 0 to destroy."; exit 2 ;;
esac
exit 1
`)
	r := newTestRunner(t)

	res, err := r.RunOperation(context.Background(), RunRequest{
		Dir: t.TempDir(), Operation: OperationPlan, ConfigureBackend: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.ExitCode)
	assert.True(t, res.HasDiff)
	assert.False(t, res.Failed(), "a plan with pending changes is a success")
	assert.Contains(t, string(res.Output), "Initializing")
	assert.Contains(t, string(res.Output), "1 to add")
}

func TestRunOperation_InitFailureShortCircuits(t *testing.T) {
	stubBinary(t, `
case "$1" in
  init) echo "Error: backend unreachable"; exit 1 ;;
esac
echo "plan should never run"; exit 0
`)
	r := newTestRunner(t)

	res, err := r.RunOperation(context.Background(), RunRequest{
		Dir: t.TempDir(), Operation: OperationPlan, ConfigureBackend: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.NotContains(t, string(res.Output), "plan should never run")
}

func TestRunOperation_MergesDeclaredEnv(t *testing.T) {
	stubBinary(t, `
case "$1" in
  init) exit 0 ;;
  apply) echo "DEPLOY_ENV=$DEPLOY_ENV"; exit 0 ;;
esac
`)
	r := newTestRunner(t)

	res, err := r.RunOperation(context.Background(), RunRequest{
		Dir:              t.TempDir(),
		Operation:        OperationApply,
		ConfigureBackend: true,
		Env:              map[string]string{"DEPLOY_ENV": "staging"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(res.Output), "DEPLOY_ENV=staging")
}

func TestRunOperation_RetriesTransientFailures(t *testing.T) {
	// The stub fails with a throttling error until the marker file has
	// accumulated two attempts, then succeeds.
	marker := filepath.Join(t.TempDir(), "attempts")
	stubBinary(t, `
case "$1" in
  init) exit 0 ;;
  apply)
    echo x >> `+marker+`
    if [ "$(wc -l < `+marker+`)" -lt 3 ]; then
      echo "Error: RequestLimitExceeded"; exit 1
    fi
    exit 0 ;;
esac
`)
	r := newTestRunner(t)

	res, err := r.RunOperation(context.Background(), RunRequest{
		Dir: t.TempDir(), Operation: OperationApply, ConfigureBackend: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 3, res.Attempts)
}

func TestRunOperation_NonRetriableFailureDoesNotRetry(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "attempts")
	stubBinary(t, `
case "$1" in
  init) exit 0 ;;
  apply) echo x >> `+marker+`; echo "Error: invalid configuration"; exit 1 ;;
esac
`)
	r := newTestRunner(t)

	res, err := r.RunOperation(context.Background(), RunRequest{
		Dir: t.TempDir(), Operation: OperationApply, ConfigureBackend: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, 1, res.Attempts)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data))
}

func TestRunOperation_BackendFlagPassedToInit(t *testing.T) {
	stubBinary(t, `
if [ "$1" = "init" ]; then
  echo "args: $@"
  exit 0
fi
exit 0
`)
	r := newTestRunner(t)

	res, err := r.RunOperation(context.Background(), RunRequest{
		Dir: t.TempDir(), Operation: OperationPlan, ConfigureBackend: false,
	})
	require.NoError(t, err)
	assert.Contains(t, string(res.Output), "-backend=false")
}

func TestSnapshotter(t *testing.T) {
	sourceRoot := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "snapshots")
	snap, err := NewSnapshotter(sourceRoot, outputDir)
	require.NoError(t, err)

	dir := filepath.Join(sourceRoot, "config", "app")
	planFile, err := snap.PlanFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outputDir, "config", "app", PlanArtifactName), planFile)

	require.NoError(t, snap.WriteJSON(dir, []byte(`{}`)))
	_, err = os.Stat(filepath.Join(outputDir, "config", "app", PlanJSONName))
	assert.NoError(t, err)

	_, err = snap.PlanFile("/somewhere/else")
	assert.Error(t, err)
}
