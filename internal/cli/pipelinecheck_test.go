package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestPipelineCheckCmd_Consistent(t *testing.T) {
	configRoot := t.TempDir()
	pipelineDir := t.TempDir()
	writeTestFile(t, filepath.Join(configRoot, "core", "main.tf"), "")
	writeTestFile(t, filepath.Join(pipelineDir, "infra.yml"), "entries:\n  - directory: core\n")

	cmd := newPipelineCheckCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--pipeline-dir", pipelineDir, "--config-dir", configRoot})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPipelineCheckCmd_ReportsProblems(t *testing.T) {
	configRoot := t.TempDir()
	pipelineDir := t.TempDir()
	writeTestFile(t, filepath.Join(configRoot, "core", "main.tf"), "")
	writeTestFile(t, filepath.Join(configRoot, "orphan", "main.tf"), "")
	writeTestFile(t, filepath.Join(pipelineDir, "infra.yml"), `
entries:
  - directory: core
  - directory: missing
`)

	cmd := newPipelineCheckCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--pipeline-dir", pipelineDir, "--config-dir", configRoot})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for inconsistent manifests")
	}
	if got := ExitCode(err); got != ExitFailure {
		t.Errorf("expected exit code %d, got %d", ExitFailure, got)
	}
	if !strings.Contains(err.Error(), "inconsistent") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestPipelineCheckCmd_RequiresPipelineDir(t *testing.T) {
	cmd := newPipelineCheckCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --pipeline-dir")
	}
	if got := ExitCode(err); got != ExitUsage {
		t.Errorf("expected exit code %d, got %d", ExitUsage, got)
	}
}
