package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupTree(t *testing.T) (configRoot, pipelineDir string) {
	t.Helper()
	configRoot = t.TempDir()
	pipelineDir = t.TempDir()
	writeFile(t, filepath.Join(configRoot, "core", "main.tf"), "")
	writeFile(t, filepath.Join(configRoot, "app", "main.tf"), "")
	writeFile(t, filepath.Join(configRoot, "orphan", "main.tf"), "")
	return configRoot, pipelineDir
}

func resolver(t *testing.T, root string) *wrapper.Resolver {
	t.Helper()
	r, err := wrapper.NewResolver(root)
	require.NoError(t, err)
	return r
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "infra.yml"), `
entries:
  - directory: core
  - directory: app
`)
	writeFile(t, filepath.Join(dir, "named.yaml"), `
name: custom
entries:
  - directory: orphan
`)
	writeFile(t, filepath.Join(dir, "README.md"), "not a manifest")

	manifests, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, "infra", manifests[0].Name)
	assert.Len(t, manifests[0].Entries, 2)
	assert.Equal(t, "custom", manifests[1].Name)
}

func TestCheck_ReportsAllThreeProblemClasses(t *testing.T) {
	configRoot, pipelineDir := setupTree(t)
	writeFile(t, filepath.Join(pipelineDir, "a.yml"), `
entries:
  - directory: core
  - directory: app
  - directory: missing
`)
	writeFile(t, filepath.Join(pipelineDir, "b.yml"), `
entries:
  - directory: core
`)

	manifests, err := LoadDir(pipelineDir)
	require.NoError(t, err)

	report, err := Check(configRoot, manifests, resolver(t, configRoot), nil)
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, []string{filepath.Join(configRoot, "orphan")}, report.Unlisted)
	assert.Equal(t, []Reference{{Manifest: "a", Directory: "missing"}}, report.Dangling)
	assert.Equal(t, []string{filepath.Join(configRoot, "core")}, report.Duplicated)
}

func TestCheck_WaivedDirectoryNotReported(t *testing.T) {
	configRoot, pipelineDir := setupTree(t)
	writeFile(t, filepath.Join(configRoot, "orphan", wrapper.ConfigFileName), "pipeline_check: false\n")
	writeFile(t, filepath.Join(pipelineDir, "a.yml"), `
entries:
  - directory: core
  - directory: app
`)

	manifests, err := LoadDir(pipelineDir)
	require.NoError(t, err)

	report, err := Check(configRoot, manifests, resolver(t, configRoot), nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestCheck_FiltersRestrictMembershipCheck(t *testing.T) {
	configRoot, pipelineDir := setupTree(t)
	writeFile(t, filepath.Join(pipelineDir, "a.yml"), `
entries:
  - directory: core
`)

	manifests, err := LoadDir(pipelineDir)
	require.NoError(t, err)

	report, err := Check(configRoot, manifests, resolver(t, configRoot),
		[]string{filepath.Join(configRoot, "core")})
	require.NoError(t, err)

	// app and orphan are unlisted but outside the filter.
	assert.Empty(t, report.Unlisted)
	assert.True(t, report.Clean())
}
