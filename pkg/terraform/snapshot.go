package terraform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

// Snapshot file names written per directory under the output tree.
const (
	PlanArtifactName = "tfplan.bin"
	PlanJSONName     = "tfplan.json"
)

// Snapshotter persists per-directory plan snapshots under an output root,
// mirroring source-tree relative paths.
type Snapshotter struct {
	sourceRoot string
	outputDir  string
}

// NewSnapshotter creates a snapshotter writing under outputDir for source
// directories under sourceRoot.
func NewSnapshotter(sourceRoot, outputDir string) (*Snapshotter, error) {
	absRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, err
	}
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to create output directory %s", absOut), err)
	}
	return &Snapshotter{sourceRoot: absRoot, outputDir: absOut}, nil
}

// PlanFile returns the path the binary plan artifact for dir should be saved
// at, creating the snapshot directory. The caller passes this path to the
// plan invocation via RunRequest.PlanFile.
func (s *Snapshotter) PlanFile(dir string) (string, error) {
	snapDir, err := s.dirFor(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory %s: %w", snapDir, err)
	}
	return filepath.Join(snapDir, PlanArtifactName), nil
}

// WriteJSON stores the structured form of dir's plan next to its binary
// artifact.
func (s *Snapshotter) WriteJSON(dir string, data []byte) error {
	snapDir, err := s.dirFor(dir)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(snapDir, PlanJSONName), data, 0o644)
}

func (s *Snapshotter) dirFor(dir string) (string, error) {
	rel, err := filepath.Rel(s.sourceRoot, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("directory %s is outside the source root %s", dir, s.sourceRoot)
	}
	return filepath.Join(s.outputDir, rel), nil
}

// ShowPlanJSON converts a saved binary plan artifact to its structured JSON
// form via show -json. A non-zero exit is reported as an error because
// conversion failure counts as a tool failure for the directory.
func (r *Runner) ShowPlanJSON(ctx context.Context, dir, planFile string) ([]byte, error) {
	res, err := r.exec(ctx, dir, []string{"show", "-json", "-no-color", planFile}, nil)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, errors.ToolFailure(dir, res.ExitCode,
			fmt.Errorf("failed to convert plan artifact: %s", res.Output))
	}
	return res.Output, nil
}
