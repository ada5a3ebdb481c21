package graph

import (
	"log/slog"
	"sort"

	"github.com/tfgraph-io/tfgraph/internal/logging"
)

// Connect merges symlinked directory aliases into the graph. For each alias
// whose target is a known directory, the alias is scheduled alongside the
// target: the alias depends on the target, inherits the target's
// dependencies, and the target's dependents gain an edge on the alias. Any
// edge that would close a cycle is dropped and logged. Reconciliation is
// best effort and never fails the run.
func Connect(g *Graph, symlinks map[string]string) {
	log := logging.New("graph")

	links := make([]string, 0, len(symlinks))
	for link := range symlinks {
		links = append(links, link)
	}
	sort.Strings(links)

	for _, link := range links {
		target := symlinks[link]

		targetNode := g.GetNode(target)
		if targetNode == nil {
			targetNode = takeFromPost(g, target)
		}
		if targetNode == nil {
			// Target outside the scanned scope. The alias keeps whatever
			// placement it already has and gains no synthetic edges.
			log.Debug("symlink target not in graph", "link", link, "target", target)
			continue
		}

		linkNode := g.GetNode(link)
		if linkNode == nil {
			linkNode = takeFromPost(g, link)
		}
		if linkNode == nil {
			linkNode = NewSymlinkNode(link, target)
			_ = g.AddNode(linkNode)
		}

		inbound := append([]string{}, targetNode.DependsOn...)
		outbound := append([]string{}, targetNode.DependedOnBy...)

		addMirrorEdge(g, log, link, target)
		for _, dep := range inbound {
			addMirrorEdge(g, log, link, dep)
		}
		for _, dependent := range outbound {
			if dependent == link {
				continue
			}
			addMirrorEdge(g, log, dependent, link)
		}
	}
}

// addMirrorEdge adds "dependent depends on dependency" unless the edge
// already exists or would close a cycle.
func addMirrorEdge(g *Graph, log *slog.Logger, dependentPath, dependencyPath string) {
	if g.HasEdge(dependentPath, dependencyPath) {
		return
	}
	if g.WouldCycle(dependentPath, dependencyPath) {
		log.Warn("dropping symlink edge that would introduce a cycle",
			"dependent", dependentPath, "dependency", dependencyPath)
		return
	}
	_ = g.AddEdge(dependentPath, dependencyPath)
}

// takeFromPost moves a post-set member into the graph proper, returning nil
// when the path is not a post-set member.
func takeFromPost(g *Graph, path string) *Node {
	for i, node := range g.Post {
		if node.Path != path {
			continue
		}
		g.Post = append(g.Post[:i], g.Post[i+1:]...)
		_ = g.AddNode(node)
		return node
	}
	return nil
}
