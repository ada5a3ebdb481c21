package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
	"github.com/tfgraph-io/tfgraph/pkg/scan"
	"github.com/tfgraph-io/tfgraph/pkg/tfparse"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

// ConfigSource resolves the effective wrapper configuration for a directory.
type ConfigSource interface {
	Resolve(dir string) (*wrapper.Config, error)
}

// CheckBackends verifies that every given source directory declares a remote
// state backend. It returns the directories missing one, excluding
// directories whose wrapper config waives pipeline policy. File arguments
// resolve to their containing directory. No tool invocation happens; the
// check is pure static analysis.
func CheckBackends(paths []string, wrappers ConfigSource) ([]string, error) {
	var missing []string
	for _, path := range paths {
		dir, err := resolveDir(path)
		if err != nil {
			return nil, err
		}
		if !scan.HasSourceFiles(dir) {
			return nil, errors.ConfigError(fmt.Sprintf("%s contains no source files", dir), nil)
		}

		cfg, err := wrappers.Resolve(dir)
		if err != nil {
			return nil, err
		}
		if !cfg.PipelineCheck {
			continue
		}

		has, err := tfparse.HasBackend(dir)
		if err != nil {
			return nil, err
		}
		if !has {
			missing = append(missing, dir)
		}
	}
	return missing, nil
}

func resolveDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.ConfigError(fmt.Sprintf("cannot access %s", abs), err)
	}
	if !info.IsDir() {
		return filepath.Dir(abs), nil
	}
	return abs, nil
}
