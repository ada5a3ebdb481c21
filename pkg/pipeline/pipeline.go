// Package pipeline loads pipeline manifests and checks them against the
// configuration tree.
//
// A manifest is a YAML file listing the configuration directories one
// pipeline executes, with paths relative to the configuration root. The
// consistency check reports three independent problem classes: source
// directories missing from every manifest, manifest entries referencing
// directories that do not exist, and directories listed more than once.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
	"github.com/tfgraph-io/tfgraph/pkg/scan"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

// Entry is one directory a manifest schedules.
type Entry struct {
	// Directory is relative to the configuration root.
	Directory string `yaml:"directory"`
}

// Manifest is one loaded pipeline definition.
type Manifest struct {
	// Name defaults to the file name without extension.
	Name    string  `yaml:"name,omitempty"`
	Entries []Entry `yaml:"entries"`

	// Path is the manifest file this was loaded from.
	Path string `yaml:"-"`
}

// LoadDir loads every YAML manifest directly in dir, sorted by file name.
func LoadDir(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to read pipeline directory %s", dir), err)
	}

	var manifests []*Manifest
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml")) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("failed to read %s", path), err)
		}

		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errors.ParseError(path, err)
		}
		if m.Name == "" {
			m.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}
		m.Path = path
		manifests = append(manifests, &m)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].Path < manifests[j].Path })
	return manifests, nil
}

// Reference names a manifest entry for reporting.
type Reference struct {
	Manifest  string
	Directory string
}

// Report holds the outcome of one consistency check. The three problem
// classes are independent; any non-empty class makes the check fail.
type Report struct {
	// Unlisted are source directories absent from every manifest.
	Unlisted []string

	// Dangling are manifest entries referencing nonexistent directories.
	Dangling []Reference

	// Duplicated are directories listed more than once, within or across
	// manifests.
	Duplicated []string
}

// Clean reports whether the check found no problems.
func (r *Report) Clean() bool {
	return len(r.Unlisted) == 0 && len(r.Dangling) == 0 && len(r.Duplicated) == 0
}

// ConfigSource resolves wrapper configuration; directories whose config
// waives pipeline policy are exempt from the membership check.
type ConfigSource interface {
	Resolve(dir string) (*wrapper.Config, error)
}

// Check compares the manifests against the source directories under
// configRoot. Optional filters restrict the membership check to directories
// under the given paths; the other problem classes always cover everything.
func Check(configRoot string, manifests []*Manifest, wrappers ConfigSource, filters []string) (*Report, error) {
	absRoot, err := filepath.Abs(configRoot)
	if err != nil {
		return nil, err
	}

	scanned, err := scan.Discover(absRoot)
	if err != nil {
		return nil, err
	}

	listed := make(map[string][]string)
	report := &Report{}
	for _, m := range manifests {
		for _, entry := range m.Entries {
			dir := filepath.Clean(filepath.Join(absRoot, entry.Directory))
			info, statErr := os.Stat(dir)
			if statErr != nil || !info.IsDir() {
				report.Dangling = append(report.Dangling, Reference{Manifest: m.Name, Directory: entry.Directory})
				continue
			}
			listed[dir] = append(listed[dir], m.Name)
		}
	}

	for dir, members := range listed {
		if len(members) > 1 {
			report.Duplicated = append(report.Duplicated, dir)
		}
	}
	sort.Strings(report.Duplicated)

	absFilters, err := absAll(filters)
	if err != nil {
		return nil, err
	}
	for _, d := range scanned.Directories {
		if !matchesFilters(d.Path, absFilters) {
			continue
		}
		if _, ok := listed[d.Path]; ok {
			continue
		}
		cfg, err := wrappers.Resolve(d.Path)
		if err != nil {
			return nil, err
		}
		if !cfg.PipelineCheck {
			continue
		}
		report.Unlisted = append(report.Unlisted, d.Path)
	}
	sort.Strings(report.Unlisted)

	return report, nil
}

func absAll(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out = append(out, filepath.Clean(abs))
	}
	return out, nil
}

func matchesFilters(dir string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if dir == f || strings.HasPrefix(dir, f+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
