// Package impact computes which directories are transitively affected by a
// set of changed source files.
//
// Three reachability graphs are built over the same directory universe:
// module-reference usage, raw file inclusion (shared symlinked files), and
// auto-loaded variable files. They compose by edge union, and the affected
// set for a change is the union graph's descendants of each changed file.
package impact

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/graph"
	"github.com/tfgraph-io/tfgraph/pkg/scan"
	"github.com/tfgraph-io/tfgraph/pkg/tfparse"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

// ConfigSource resolves the effective wrapper configuration for a directory.
// Directories whose configuration sets plan_check to false are excluded from
// the affected set.
type ConfigSource interface {
	Resolve(dir string) (*wrapper.Config, error)
}

// Analyzer computes change impact over one configuration tree.
type Analyzer struct {
	wrappers ConfigSource
	log      *slog.Logger
}

// NewAnalyzer creates an analyzer backed by the given configuration source.
func NewAnalyzer(wrappers ConfigSource) *Analyzer {
	return &Analyzer{
		wrappers: wrappers,
		log:      logging.New("impact"),
	}
}

// Affected returns the directories under scopeRoot transitively affected by
// the changed files, partitioned into regular and symlinked directories. A
// directory survives only if it still exists, contains source files, and has
// not opted out via its resolved configuration. The analysis is read-only
// and monotonic: widening changedFiles never shrinks the result.
func (a *Analyzer) Affected(ctx context.Context, changedFiles []string, scopeRoot string) (regular, symlinked []string, err error) {
	absRoot, err := filepath.Abs(scopeRoot)
	if err != nil {
		return nil, nil, err
	}

	scanned, err := scan.Discover(absRoot)
	if err != nil {
		return nil, nil, err
	}

	union, err := a.composedGraph(ctx, absRoot, scanned)
	if err != nil {
		return nil, nil, err
	}

	scannedDirs := make(map[string]scan.Kind, len(scanned.Directories))
	for _, d := range scanned.Directories {
		scannedDirs[d.Path] = d.Kind
	}

	candidates := make(map[string]bool)
	for _, changed := range changedFiles {
		abs, err := filepath.Abs(changed)
		if err != nil {
			return nil, nil, err
		}
		abs = filepath.Clean(abs)

		for _, path := range []string{abs, filepath.Dir(abs)} {
			if union.GetNode(path) == nil {
				continue
			}
			for _, descendant := range union.Descendants(path) {
				candidates[descendant] = true
			}
		}

		// A change inside a tracked directory affects that directory even
		// when nothing else includes it.
		if _, ok := scannedDirs[filepath.Dir(abs)]; ok {
			candidates[filepath.Dir(abs)] = true
		}
	}

	for dir := range candidates {
		keep, err := a.retain(dir, absRoot)
		if err != nil {
			return nil, nil, err
		}
		if !keep {
			continue
		}
		if scannedDirs[dir] == scan.KindSymlink {
			symlinked = append(symlinked, dir)
		} else {
			regular = append(regular, dir)
		}
	}
	sort.Strings(regular)
	sort.Strings(symlinked)

	a.log.Debug("change impact computed",
		"changed", len(changedFiles), "regular", len(regular), "symlinked", len(symlinked))
	return regular, symlinked, nil
}

// composedGraph builds the module-usage, file-inclusion, and auto-variable
// graphs concurrently and unions them.
func (a *Analyzer) composedGraph(ctx context.Context, root string, scanned *scan.Result) (*graph.Graph, error) {
	var modules, includes, autovars *graph.Graph

	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		modules = a.moduleUsageGraph(scanned.Directories)
		return nil
	})
	eg.Go(func() error {
		includes = a.fileInclusionGraph(scanned.Directories)
		return nil
	})
	eg.Go(func() error {
		autovars = a.autoVariableGraph(root, scanned.Directories)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return graph.Union(modules, graph.Union(includes, autovars)), nil
}

// moduleUsageGraph records an edge from each locally referenced module
// directory to the directory consuming it. Directories whose sources fail to
// parse contribute no edges; impact analysis is best effort.
func (a *Analyzer) moduleUsageGraph(dirs []scan.Directory) *graph.Graph {
	g := graph.NewGraph()
	for _, d := range dirs {
		sources, err := tfparse.ModuleSources(d.Path)
		if err != nil {
			a.log.Debug("skipping unparseable directory", "path", d.Path, "error", err)
			continue
		}
		for _, module := range sources {
			if module == d.Path {
				continue
			}
			ensureNode(g, d.Path)
			ensureNode(g, module)
			_ = g.AddEdge(d.Path, module)
		}
	}
	return g
}

// fileInclusionGraph records an edge from each included file's resolved real
// path to the directory including it. A file is included when it is itself a
// symlink, or when the directory is a symlink alias and the file resolves
// through it to the target's real file.
func (a *Analyzer) fileInclusionGraph(dirs []scan.Directory) *graph.Graph {
	g := graph.NewGraph()
	for _, d := range dirs {
		entries, err := os.ReadDir(d.Path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if entry.Type()&os.ModeSymlink == 0 && d.Kind != scan.KindSymlink {
				continue
			}
			child := filepath.Join(d.Path, entry.Name())
			real, err := filepath.EvalSymlinks(child)
			if err != nil || real == child {
				continue
			}
			info, err := os.Stat(real)
			if err != nil || info.IsDir() {
				continue
			}
			ensureNode(g, real)
			ensureNode(g, d.Path)
			_ = g.AddEdge(d.Path, real)
		}
	}
	return g
}

// autoVariableGraph records an edge from each auto-loaded variable file to
// every source directory at or below the file's own directory, since
// ancestor variable files are included downward.
func (a *Analyzer) autoVariableGraph(root string, dirs []scan.Directory) *graph.Graph {
	g := graph.NewGraph()
	varFiles := make(map[string][]string)

	for _, d := range dirs {
		for _, ancestor := range ancestorChain(root, d.Path) {
			files, ok := varFiles[ancestor]
			if !ok {
				files = autoVariableFiles(ancestor)
				varFiles[ancestor] = files
			}
			for _, f := range files {
				ensureNode(g, f)
				ensureNode(g, d.Path)
				_ = g.AddEdge(d.Path, f)
			}
		}
	}
	return g
}

// autoVariableFiles lists the variable files in dir that Terraform loads
// automatically.
func autoVariableFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "terraform.tfvars" || strings.HasSuffix(name, ".auto.tfvars") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files
}

// ancestorChain returns the directories from root down to dir inclusive.
// Directories outside root yield only themselves.
func ancestorChain(root, dir string) []string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{dir}
	}
	chain := []string{root}
	if rel == "." {
		return chain
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		chain = append(chain, current)
	}
	return chain
}

// retain applies the survival filters to one candidate directory.
func (a *Analyzer) retain(dir, root string) (bool, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false, nil
	}
	if !scan.HasSourceFiles(dir) {
		return false, nil
	}
	cfg, err := a.wrappers.Resolve(dir)
	if err != nil {
		return false, err
	}
	return cfg.PlanCheck, nil
}

func ensureNode(g *graph.Graph, path string) {
	if g.GetNode(path) == nil {
		_ = g.AddNode(graph.NewNode(path))
	}
}
