package graph

import (
	"fmt"
	"sort"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

// Graph represents a dependency graph over configuration directories.
type Graph struct {
	// All nodes in the graph, keyed by canonical absolute path.
	Nodes map[string]*Node

	// Post holds discovered directories with no declared dependency
	// metadata. They are valid targets but have no ordering constraints and
	// run as a separate unordered batch.
	Post []*Node

	// Declared reports whether any scanned directory declared dependencies.
	// When false the whole tree fell back to unordered execution and every
	// discovered directory is a post-set member.
	Declared bool
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.Nodes[node.Path]; exists {
		return fmt.Errorf("node %s already exists", node.Path)
	}
	g.Nodes[node.Path] = node
	return nil
}

// GetNode returns a node by path.
func (g *Graph) GetNode(path string) *Node {
	return g.Nodes[path]
}

// SortedPaths returns every node path in sorted order.
func (g *Graph) SortedPaths() []string {
	paths := make([]string, 0, len(g.Nodes))
	for path := range g.Nodes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// AddEdge adds a dependency edge: dependent depends on dependency. Both
// nodes must exist; self-loops are rejected; duplicates are ignored.
func (g *Graph) AddEdge(dependentPath, dependencyPath string) error {
	if dependentPath == dependencyPath {
		return fmt.Errorf("self-dependency on %s", dependentPath)
	}

	dependent := g.GetNode(dependentPath)
	if dependent == nil {
		return fmt.Errorf("dependent node %s not found", dependentPath)
	}

	dependency := g.GetNode(dependencyPath)
	if dependency == nil {
		return fmt.Errorf("dependency node %s not found", dependencyPath)
	}

	dependent.AddDependency(dependencyPath)
	dependency.AddDependent(dependentPath)

	return nil
}

// HasEdge reports whether dependent already depends on dependency.
func (g *Graph) HasEdge(dependentPath, dependencyPath string) bool {
	dependent := g.GetNode(dependentPath)
	if dependent == nil {
		return false
	}
	for _, dep := range dependent.DependsOn {
		if dep == dependencyPath {
			return true
		}
	}
	return false
}

// WouldCycle reports whether adding "dependent depends on dependency" would
// close a cycle, i.e. the dependency already (transitively) depends on the
// dependent.
func (g *Graph) WouldCycle(dependentPath, dependencyPath string) bool {
	if dependentPath == dependencyPath {
		return true
	}
	seen := map[string]bool{dependencyPath: true}
	queue := []string{dependencyPath}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		node := g.GetNode(current)
		if node == nil {
			continue
		}
		for _, dep := range node.DependsOn {
			if dep == dependentPath {
				return true
			}
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return false
}

// TopologicalSort returns nodes in topological order (dependencies first)
// using Kahn's algorithm with a sorted queue for deterministic output. When
// the graph contains a cycle it returns a CyclicDependency error naming the
// members of one cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int)
	for path, node := range g.Nodes {
		inDegree[path] = len(node.DependsOn)
	}

	var queue []string
	for path, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, path)
		}
	}
	sort.Strings(queue)

	var result []*Node
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		node := g.Nodes[path]
		result = append(result, node)

		for _, dependentPath := range node.DependedOnBy {
			inDegree[dependentPath]--
			if inDegree[dependentPath] == 0 {
				queue = append(queue, dependentPath)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(g.Nodes) {
		processed := make(map[string]bool, len(result))
		for _, n := range result {
			processed[n.Path] = true
		}
		return nil, errors.CyclicDependencyError(g.findCycle(processed))
	}

	return result, nil
}

// findCycle walks the unprocessed remainder of a failed topological sort and
// returns the members of one cycle, first path repeated last.
func (g *Graph) findCycle(processed map[string]bool) []string {
	var start string
	remaining := make([]string, 0)
	for path := range g.Nodes {
		if !processed[path] {
			remaining = append(remaining, path)
		}
	}
	sort.Strings(remaining)
	if len(remaining) == 0 {
		return nil
	}
	start = remaining[0]

	// Every unprocessed node has at least one unprocessed predecessor, so
	// repeatedly stepping to one must revisit a node, closing the cycle.
	visitedAt := map[string]int{}
	var path []string
	current := start
	for {
		if idx, seen := visitedAt[current]; seen {
			cycle := append([]string{}, path[idx:]...)
			cycle = append(cycle, current)
			return cycle
		}
		visitedAt[current] = len(path)
		path = append(path, current)

		node := g.Nodes[current]
		next := ""
		deps := append([]string{}, node.DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if !processed[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			// Should not happen for unprocessed nodes; bail with what we have.
			return path
		}
		current = next
	}
}

// ReadyNodes returns all pending nodes whose predecessors are terminal,
// sorted by path.
func (g *Graph) ReadyNodes() []*Node {
	var ready []*Node
	for _, path := range g.SortedPaths() {
		node := g.Nodes[path]
		if node.IsReady(g) {
			ready = append(ready, node)
		}
	}
	return ready
}

// PendingCount returns the number of nodes not yet terminal or running.
func (g *Graph) PendingCount() int {
	count := 0
	for _, node := range g.Nodes {
		if node.Status == StatusPending {
			count++
		}
	}
	return count
}

// HasFailed returns true if any node has failed.
func (g *Graph) HasFailed() bool {
	for _, node := range g.Nodes {
		if node.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Descendants returns every node transitively depending on the given path,
// sorted, excluding the path itself.
func (g *Graph) Descendants(path string) []string {
	seen := make(map[string]bool)
	queue := []string{path}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		node := g.GetNode(current)
		if node == nil {
			continue
		}
		for _, dependent := range node.DependedOnBy {
			if !seen[dependent] {
				seen[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}

	result := make([]string, 0, len(seen))
	for p := range seen {
		if p != path {
			result = append(result, p)
		}
	}
	sort.Strings(result)
	return result
}

// Union combines two graphs: a node is present if present in either input,
// an edge is present if present in either input. Nodes and edges are
// deduplicated by path equality; the inputs are not mutated.
func Union(a, b *Graph) *Graph {
	out := NewGraph()
	for _, src := range []*Graph{a, b} {
		if src == nil {
			continue
		}
		for _, path := range src.SortedPaths() {
			node := src.Nodes[path]
			if out.GetNode(path) == nil {
				copied := NewNode(path)
				copied.Kind = node.Kind
				copied.Target = node.Target
				_ = out.AddNode(copied)
			}
		}
	}
	for _, src := range []*Graph{a, b} {
		if src == nil {
			continue
		}
		for _, path := range src.SortedPaths() {
			node := src.Nodes[path]
			deps := append([]string{}, node.DependsOn...)
			sort.Strings(deps)
			for _, dep := range deps {
				if out.GetNode(dep) != nil {
					_ = out.AddEdge(path, dep)
				}
			}
		}
	}
	return out
}
