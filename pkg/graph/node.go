// Package graph provides dependency graph construction and traversal for
// tfgraph. Nodes are configuration directories keyed by canonical absolute
// path; edges encode "must complete before" relationships.
package graph

// NodeKind identifies how a directory appears on disk.
type NodeKind string

const (
	NodeKindRegular NodeKind = "regular"
	NodeKindSymlink NodeKind = "symlink"
)

// Status tracks the execution state of a node. A node starts pending and is
// terminal once succeeded, failed, or skipped. Status transitions are owned
// by the executor; topology never changes once execution starts.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// Node represents one configuration directory in the dependency graph.
type Node struct {
	// Path is the canonical absolute directory path, unique within a graph.
	Path string

	Kind NodeKind

	// Target is the resolved real path for symlink nodes.
	Target string

	// EnvVars is the resolved environment for this directory's tool
	// invocation, materialized before dispatch.
	EnvVars map[string]string

	// DependsOn holds paths of nodes this node depends on.
	DependsOn []string

	// DependedOnBy holds paths of nodes that depend on this node.
	DependedOnBy []string

	Status Status
}

// NewNode creates a regular directory node.
func NewNode(path string) *Node {
	return &Node{
		Path:         path,
		Kind:         NodeKindRegular,
		EnvVars:      make(map[string]string),
		DependsOn:    []string{},
		DependedOnBy: []string{},
		Status:       StatusPending,
	}
}

// NewSymlinkNode creates a node for a symlinked directory alias.
func NewSymlinkNode(path, target string) *Node {
	n := NewNode(path)
	n.Kind = NodeKindSymlink
	n.Target = target
	return n
}

// AddDependency adds a dependency to this node.
func (n *Node) AddDependency(path string) {
	for _, dep := range n.DependsOn {
		if dep == path {
			return // Already exists
		}
	}
	n.DependsOn = append(n.DependsOn, path)
}

// AddDependent adds a dependent to this node.
func (n *Node) AddDependent(path string) {
	for _, dep := range n.DependedOnBy {
		if dep == path {
			return // Already exists
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, path)
}

// IsReady returns true if the node is pending and every predecessor is
// terminal. A ready node is either runnable or blocked, depending on how
// its predecessors finished.
func (n *Node) IsReady(g *Graph) bool {
	if n.Status != StatusPending {
		return false
	}
	for _, depPath := range n.DependsOn {
		dep := g.GetNode(depPath)
		if dep == nil || !dep.Status.Terminal() {
			return false
		}
	}
	return true
}

// Blocker returns the path of one predecessor that failed or was skipped,
// or "" when every predecessor succeeded.
func (n *Node) Blocker(g *Graph) string {
	for _, depPath := range n.DependsOn {
		dep := g.GetNode(depPath)
		if dep == nil {
			continue
		}
		if dep.Status == StatusFailed || dep.Status == StatusSkipped {
			return dep.Path
		}
	}
	return ""
}
