// Package executor schedules tool invocations over a frozen dependency
// graph.
//
// Scheduling is wave based: all currently runnable directories dispatch
// concurrently under one process bound, the executor waits for the whole
// wave, then recomputes readiness. Blocked directories (any predecessor
// failed or skipped) are skipped without invoking the tool, and the skip
// propagates to their own dependents on the next iteration.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/errors"
	"github.com/tfgraph-io/tfgraph/pkg/graph"
	"github.com/tfgraph-io/tfgraph/pkg/terraform"
)

// Invoker runs the external tool for one directory node. Implementations
// must be safe for concurrent use; the executor never invokes the same node
// twice.
type Invoker interface {
	Invoke(ctx context.Context, node *graph.Node) (*terraform.RunResult, error)
}

// Options configures the executor.
type Options struct {
	// Parallelism bounds the total number of concurrent tool processes.
	Parallelism int
}

// Executor drives dependency-respecting execution. It exclusively owns node
// status transitions for the duration of a run; topology is frozen before
// ExecuteGraph is called.
type Executor struct {
	invoker     Invoker
	parallelism int
	log         *slog.Logger
}

// NewExecutor creates an executor with the given tool invoker.
func NewExecutor(invoker Invoker, opts Options) *Executor {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &Executor{
		invoker:     invoker,
		parallelism: opts.Parallelism,
		log:         logging.New("executor"),
	}
}

// ExecuteGraph runs every node in the graph in dependency order, recording
// outcomes into summary. A node dispatches only once all of its predecessors
// are terminal; nodes with a failed or skipped predecessor are skipped
// without invocation. A failed node never cancels in-flight siblings.
func (e *Executor) ExecuteGraph(ctx context.Context, g *graph.Graph, summary *RunSummary) error {
	sem := make(chan struct{}, e.parallelism)

	for {
		ready := g.ReadyNodes()
		if len(ready) == 0 {
			if pending := g.PendingCount(); pending > 0 {
				// A DAG always yields a ready node while any are pending.
				return errors.InternalError(fmt.Sprintf(
					"%d nodes pending with no ready predecessor; graph was not a DAG", pending))
			}
			return nil
		}

		var runnable []*graph.Node
		for _, node := range ready {
			if blocker := node.Blocker(g); blocker != "" {
				node.Status = graph.StatusSkipped
				summary.Record(&NodeResult{
					Path:      node.Path,
					Status:    graph.StatusSkipped,
					SkipCause: blocker,
				})
				e.log.Info("skipping directory", "dir", node.Path, "blocked_by", blocker)
				continue
			}
			runnable = append(runnable, node)
		}
		if len(runnable) == 0 {
			// Skips may have made further nodes ready; recompute.
			continue
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, node := range runnable {
			node.Status = graph.StatusRunning
			wg.Add(1)
			go func(n *graph.Node) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				res := e.invoke(ctx, n)

				mu.Lock()
				defer mu.Unlock()
				n.Status = res.Status
				summary.Record(res)
			}(node)
		}
		wg.Wait()
	}
}

// ExecutePostSet runs directories with no ordering constraints as one
// unordered batch under the same process bound. It runs regardless of how
// the primary graph fared; outcomes land in the same summary.
func (e *Executor) ExecutePostSet(ctx context.Context, nodes []*graph.Node, summary *RunSummary) {
	if len(nodes) == 0 {
		return
	}

	eg := &errgroup.Group{}
	eg.SetLimit(e.parallelism)
	var mu sync.Mutex
	for _, node := range nodes {
		node.Status = graph.StatusRunning
		eg.Go(func() error {
			res := e.invoke(ctx, node)
			mu.Lock()
			defer mu.Unlock()
			node.Status = res.Status
			summary.Record(res)
			return nil
		})
	}
	_ = eg.Wait()
}

// invoke runs the tool for one node and classifies the outcome. Invocation
// errors and tool failures both mark the node failed; the distinction lives
// in the result's Err and Output.
func (e *Executor) invoke(ctx context.Context, node *graph.Node) *NodeResult {
	e.log.Info("running directory", "dir", node.Path)

	res, err := e.invoker.Invoke(ctx, node)
	if err != nil {
		e.log.Error("invocation failed", "dir", node.Path, "error", err)
		return &NodeResult{Path: node.Path, Status: graph.StatusFailed, Err: err}
	}

	out := &NodeResult{
		Path:    node.Path,
		Output:  res.Output,
		HasDiff: res.HasDiff,
	}
	if res.Failed() {
		out.Status = graph.StatusFailed
		out.Err = errors.ToolFailure(node.Path, res.ExitCode, nil)
		e.log.Error("directory failed", "dir", node.Path, "exit_code", res.ExitCode)
	} else {
		out.Status = graph.StatusSucceeded
		e.log.Info("directory succeeded", "dir", node.Path, "has_diff", res.HasDiff)
	}
	return out
}
