// Package scan discovers infrastructure-as-code directories under a root.
//
// The scanner walks a tree following directory symlinks, records every
// directory containing Terraform source files, classifies each as regular or
// symlinked, and skips tool-internal cache directories and VCS metadata.
package scan

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tfgraph-io/tfgraph/internal/logging"
)

// Kind classifies how a directory entry appears on disk.
type Kind string

const (
	KindRegular Kind = "regular"
	KindSymlink Kind = "symlink"
)

// Directories whose contents never count as user source.
var skippedDirs = map[string]bool{
	".terraform": true,
	".git":       true,
}

// Directory is one discovered source directory.
type Directory struct {
	// Path is the canonical absolute path. For symlinked directories this is
	// the alias path, not the resolved target.
	Path string

	Kind Kind

	// Target is the resolved real path for symlinked directories.
	Target string
}

// Result holds everything one walk discovered.
type Result struct {
	// Directories is sorted by path for deterministic downstream behavior.
	Directories []Directory

	// Symlinks maps each symlinked directory path to its resolved target.
	Symlinks map[string]string
}

// Paths returns the discovered directory paths in sorted order.
func (r *Result) Paths() []string {
	paths := make([]string, 0, len(r.Directories))
	for _, d := range r.Directories {
		paths = append(paths, d.Path)
	}
	return paths
}

// Discover walks root and returns every directory containing Terraform
// source files. Directory symlinks are followed; a symlink chain that leads
// back to an ancestor is skipped rather than looping.
func Discover(root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absRoot)
	}

	s := &walker{
		log:    logging.New("scan"),
		result: &Result{Symlinks: make(map[string]string)},
	}
	if err := s.walk(absRoot, map[string]bool{}); err != nil {
		return nil, err
	}

	sort.Slice(s.result.Directories, func(i, j int) bool {
		return s.result.Directories[i].Path < s.result.Directories[j].Path
	})
	return s.result, nil
}

type walker struct {
	log    *slog.Logger
	result *Result
}

// walk visits dir and recurses into subdirectories. ancestors holds the
// resolved real paths currently on the walk stack so symlink loops terminate.
func (w *walker) walk(dir string, ancestors map[string]bool) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		// Dangling symlink or permission problem; not fatal for the walk.
		w.log.Debug("skipping unreadable directory", "path", dir, "error", err)
		return nil
	}
	if ancestors[real] {
		w.log.Debug("skipping symlink loop", "path", dir, "target", real)
		return nil
	}
	ancestors[real] = true
	defer delete(ancestors, real)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	if containsSourceFiles(dir, entries) {
		w.record(dir)
	}

	for _, entry := range entries {
		if skippedDirs[entry.Name()] {
			continue
		}
		child := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := w.walk(child, ancestors); err != nil {
				return err
			}
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			target, err := os.Stat(child)
			if err != nil || !target.IsDir() {
				continue
			}
			if err := w.walk(child, ancestors); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) record(dir string) {
	d := Directory{Path: dir, Kind: KindRegular}
	if info, err := os.Lstat(dir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(dir)
		if err == nil {
			d.Kind = KindSymlink
			d.Target = target
			w.result.Symlinks[dir] = target
		}
	}
	w.result.Directories = append(w.result.Directories, d)
}

// containsSourceFiles reports whether the directory holds at least one
// Terraform source file, following file symlinks.
func containsSourceFiles(dir string, entries []os.DirEntry) bool {
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".tf") {
			continue
		}
		if entry.Type().IsRegular() {
			return true
		}
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, entry.Name())); err == nil && info.Mode().IsRegular() {
				return true
			}
		}
	}
	return false
}

// HasSourceFiles reports whether dir directly contains Terraform source
// files. Used by callers validating candidate directories outside a walk.
func HasSourceFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return containsSourceFiles(dir, entries)
}

// IsSymlinkDir reports whether path is itself a directory symlink.
func IsSymlinkDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}
