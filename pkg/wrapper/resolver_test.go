package wrapper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

func writeWrapper(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))
}

func TestResolve_DefaultsWithoutFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "config", "app")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	r, err := NewResolver(root)
	require.NoError(t, err)

	cfg, err := r.Resolve(dir)
	require.NoError(t, err)

	assert.True(t, cfg.ConfigureBackend)
	assert.True(t, cfg.PipelineCheck)
	assert.True(t, cfg.PlanCheck)
	assert.False(t, cfg.Declared())
	assert.Empty(t, cfg.EnvVars)
}

func TestResolve_NearestDirectoryWins(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "config", "app")

	writeWrapper(t, root, "configure_backend: false\npipeline_check: false\n")
	writeWrapper(t, app, "configure_backend: true\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	cfg, err := r.Resolve(app)
	require.NoError(t, err)

	// Nearest declaration wins per field; untouched fields inherit.
	assert.True(t, cfg.ConfigureBackend)
	assert.False(t, cfg.PipelineCheck)
	assert.True(t, cfg.PlanCheck)
}

func TestResolve_EnvVarsMergeKeywise(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "config", "app")

	writeWrapper(t, root, `
envvars:
  AWS_REGION:
    source: text
    value: us-east-1
  DB_PASSWORD:
    source: ssm
    path: /shared/db-password
`)
	writeWrapper(t, app, `
envvars:
  AWS_REGION:
    source: text
    value: us-west-2
`)

	r, err := NewResolver(root)
	require.NoError(t, err)

	cfg, err := r.Resolve(app)
	require.NoError(t, err)

	assert.Equal(t, "us-west-2", cfg.EnvVars["AWS_REGION"].Value)
	assert.Equal(t, SourceSSM, cfg.EnvVars["DB_PASSWORD"].Source)
	assert.Equal(t, "/shared/db-password", cfg.EnvVars["DB_PASSWORD"].Path)
}

func TestResolve_DependsOnRelativeToDeclaringDir(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "config", "app")

	writeWrapper(t, app, "depends_on:\n  - ../network\n  - ../db\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	cfg, err := r.Resolve(app)
	require.NoError(t, err)

	require.True(t, cfg.Declared())
	assert.Equal(t, []string{
		filepath.Join(root, "config", "network"),
		filepath.Join(root, "config", "db"),
	}, cfg.DependsOn)
}

func TestResolve_NearestDependsOnReplacesOuter(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "config", "app")

	writeWrapper(t, root, "depends_on:\n  - config/base\n")
	writeWrapper(t, app, "depends_on: []\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	cfg, err := r.Resolve(app)
	require.NoError(t, err)

	require.True(t, cfg.Declared())
	assert.Empty(t, cfg.DependsOn)
}

func TestResolve_InvalidEnvVarSource(t *testing.T) {
	root := t.TempDir()
	writeWrapper(t, root, `
envvars:
  TOKEN:
    source: vault
    path: /secret/token
`)

	r, err := NewResolver(root)
	require.NoError(t, err)

	_, err = r.Resolve(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestResolve_SSMRequiresPath(t *testing.T) {
	root := t.TempDir()
	writeWrapper(t, root, `
envvars:
  TOKEN:
    source: ssm
`)

	r, err := NewResolver(root)
	require.NoError(t, err)

	_, err = r.Resolve(root)
	assert.Error(t, err)
}

func TestResolve_MalformedYAML(t *testing.T) {
	root := t.TempDir()
	writeWrapper(t, root, "depends_on: [unclosed\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	_, err = r.Resolve(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestResolve_DirectoryOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeWrapper(t, outside, "pipeline_check: false\n")

	r, err := NewResolver(root)
	require.NoError(t, err)

	cfg, err := r.Resolve(outside)
	require.NoError(t, err)
	assert.False(t, cfg.PipelineCheck)
}
