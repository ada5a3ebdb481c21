package impact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

// fakeConfigs resolves wrapper configuration from a fixed map, defaulting to
// a directory that participates in every check.
type fakeConfigs map[string]*wrapper.Config

func (f fakeConfigs) Resolve(dir string) (*wrapper.Config, error) {
	if cfg, ok := f[dir]; ok {
		return cfg, nil
	}
	return &wrapper.Config{ConfigureBackend: true, PipelineCheck: true, PlanCheck: true}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAffected_ModuleUsage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modules", "network", "main.tf"), `variable "cidr" {}`)
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `
module "network" {
  source = "../../modules/network"
}
`)
	writeFile(t, filepath.Join(root, "config", "other", "main.tf"), `resource "null_resource" "x" {}`)

	a := NewAnalyzer(fakeConfigs{})
	regular, symlinked, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "modules", "network", "main.tf")}, root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "config", "app"),
		filepath.Join(root, "modules", "network"),
	}, regular)
	assert.Empty(t, symlinked)
}

func TestAffected_ModuleChain(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modules", "base", "main.tf"), `variable "x" {}`)
	writeFile(t, filepath.Join(root, "modules", "mid", "main.tf"), `
module "base" {
  source = "../base"
}
`)
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `
module "mid" {
  source = "../../modules/mid"
}
`)

	a := NewAnalyzer(fakeConfigs{})
	regular, _, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "modules", "base", "main.tf")}, root)
	require.NoError(t, err)

	// The change propagates through the module-in-module chain to the app.
	assert.Contains(t, regular, filepath.Join(root, "config", "app"))
	assert.Contains(t, regular, filepath.Join(root, "modules", "mid"))
	assert.Contains(t, regular, filepath.Join(root, "modules", "base"))
}

func TestAffected_SymlinkedFileInclusion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shared", "providers.tfvars"), `region = "us-east-1"`)
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `resource "null_resource" "x" {}`)
	require.NoError(t, os.Symlink(
		filepath.Join(root, "shared", "providers.tfvars"),
		filepath.Join(root, "config", "app", "providers.tfvars")))

	a := NewAnalyzer(fakeConfigs{})
	regular, _, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "shared", "providers.tfvars")}, root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "config", "app")}, regular)
}

func TestAffected_SymlinkedDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `resource "null_resource" "x" {}`)
	require.NoError(t, os.Symlink(
		filepath.Join(root, "config", "app"),
		filepath.Join(root, "config", "app-alias")))

	a := NewAnalyzer(fakeConfigs{})
	regular, symlinked, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "config", "app", "main.tf")}, root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "config", "app")}, regular)
	assert.Equal(t, []string{filepath.Join(root, "config", "app-alias")}, symlinked)
}

func TestAffected_AutoVariables(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "global.auto.tfvars"), `env = "prod"`)
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `resource "null_resource" "x" {}`)
	writeFile(t, filepath.Join(root, "config", "db", "main.tf"), `resource "null_resource" "y" {}`)

	a := NewAnalyzer(fakeConfigs{})
	regular, _, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "global.auto.tfvars")}, root)
	require.NoError(t, err)

	// A root-level auto variable file reaches every directory below it.
	assert.Equal(t, []string{
		filepath.Join(root, "config", "app"),
		filepath.Join(root, "config", "db"),
	}, regular)
}

func TestAffected_AutoVariablesScopedToSubtree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config", "terraform.tfvars"), `env = "prod"`)
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `resource "null_resource" "x" {}`)
	writeFile(t, filepath.Join(root, "other", "db", "main.tf"), `resource "null_resource" "y" {}`)

	a := NewAnalyzer(fakeConfigs{})
	regular, _, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "config", "terraform.tfvars")}, root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "config", "app")}, regular)
}

func TestAffected_PlanCheckOptOut(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modules", "network", "main.tf"), `variable "cidr" {}`)
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `
module "network" {
  source = "../../modules/network"
}
`)

	configs := fakeConfigs{
		filepath.Join(root, "modules", "network"): {PlanCheck: false},
	}
	a := NewAnalyzer(configs)
	regular, _, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "modules", "network", "main.tf")}, root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "config", "app")}, regular)
}

func TestAffected_OutsideScopeDropped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tree", "config", "app", "main.tf"), `resource "null_resource" "x" {}`)

	a := NewAnalyzer(fakeConfigs{})
	// Scope is narrower than the change's location.
	regular, symlinked, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "elsewhere", "main.tf")}, filepath.Join(root, "tree"))
	require.NoError(t, err)

	assert.Empty(t, regular)
	assert.Empty(t, symlinked)
}

func TestAffected_Monotonic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modules", "network", "main.tf"), `variable "cidr" {}`)
	writeFile(t, filepath.Join(root, "config", "app", "main.tf"), `
module "network" {
  source = "../../modules/network"
}
`)
	writeFile(t, filepath.Join(root, "config", "db", "main.tf"), `resource "null_resource" "y" {}`)

	a := NewAnalyzer(fakeConfigs{})

	narrow, _, err := a.Affected(context.Background(),
		[]string{filepath.Join(root, "modules", "network", "main.tf")}, root)
	require.NoError(t, err)

	wide, _, err := a.Affected(context.Background(), []string{
		filepath.Join(root, "modules", "network", "main.tf"),
		filepath.Join(root, "config", "db", "main.tf"),
	}, root)
	require.NoError(t, err)

	for _, dir := range narrow {
		assert.Contains(t, wide, dir)
	}
	assert.Contains(t, wide, filepath.Join(root, "config", "db"))
}

func TestAffected_DeletedDirectoryDropped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modules", "network", "main.tf"), `variable "cidr" {}`)
	appDir := filepath.Join(root, "config", "app")
	writeFile(t, filepath.Join(appDir, "main.tf"), `
module "network" {
  source = "../../modules/network"
}
`)

	a := NewAnalyzer(fakeConfigs{})

	// Remove the consumer after the change is identified; the surviving set
	// must not name a directory that no longer exists.
	changed := filepath.Join(root, "modules", "network", "main.tf")
	require.NoError(t, os.RemoveAll(appDir))

	regular, _, err := a.Affected(context.Background(), []string{changed}, root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "modules", "network")}, regular)
}
