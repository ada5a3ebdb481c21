package graph

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/errors"
	"github.com/tfgraph-io/tfgraph/pkg/scan"
)

// DependencySource supplies declared dependency metadata for a directory.
// The declared flag distinguishes a directory with an empty dependency
// list from one whose configuration never mentions dependencies.
type DependencySource interface {
	DependsOn(dir string) (paths []string, declared bool, err error)
}

// Builder constructs a dependency graph from scanned directories.
type Builder struct {
	graph *Graph
	deps  DependencySource
	log   *slog.Logger

	// declarations are recorded during AddDirectory and wired into edges
	// during Build, once every node is known.
	declarations map[string][]string
}

// NewBuilder creates a new graph builder backed by the given dependency
// metadata source.
func NewBuilder(deps DependencySource) *Builder {
	return &Builder{
		graph:        NewGraph(),
		deps:         deps,
		log:          logging.New("graph"),
		declarations: make(map[string][]string),
	}
}

// AddDirectory adds one scanned directory to the graph under construction.
// Dependency metadata is resolved immediately; edge wiring is deferred to
// Build so declarations may reference directories added later.
func (b *Builder) AddDirectory(dir scan.Directory) error {
	var node *Node
	if dir.Kind == scan.KindSymlink {
		node = NewSymlinkNode(dir.Path, dir.Target)
	} else {
		node = NewNode(dir.Path)
	}
	if err := b.graph.AddNode(node); err != nil {
		return errors.InternalError(fmt.Sprintf("duplicate directory %s in scan results", dir.Path))
	}

	paths, declared, err := b.deps.DependsOn(dir.Path)
	if err != nil {
		return err
	}
	if declared {
		b.graph.Declared = true
		b.declarations[dir.Path] = paths
	}
	return nil
}

// Build wires the recorded declarations into edges, partitions directories
// into graph nodes and the post-set, and validates that the result is
// acyclic. Directories with no declaration and no edges land in the
// post-set; everything else stays in the graph.
func (b *Builder) Build() (*Graph, error) {
	g := b.graph

	for _, dir := range sortedKeys(b.declarations) {
		for _, dep := range b.declarations[dir] {
			if dep == dir {
				return nil, errors.CyclicDependencyError([]string{dir, dir})
			}
			if g.GetNode(dep) == nil {
				return nil, errors.NoDependencyError(dir, dep)
			}
			if err := g.AddEdge(dir, dep); err != nil {
				return nil, err
			}
		}
	}

	for _, path := range g.SortedPaths() {
		node := g.Nodes[path]
		if _, declared := b.declarations[path]; declared {
			continue
		}
		if len(node.DependsOn) == 0 && len(node.DependedOnBy) == 0 {
			g.Post = append(g.Post, node)
			delete(g.Nodes, path)
		}
	}

	if _, err := g.TopologicalSort(); err != nil {
		return nil, err
	}

	if !g.Declared && len(g.Post) > 0 {
		b.log.Info("no dependency declarations found, directories will run unordered", "count", len(g.Post))
	}
	b.log.Debug("graph constructed", "nodes", len(g.Nodes), "post", len(g.Post))
	return g, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
