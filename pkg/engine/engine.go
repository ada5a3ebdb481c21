// Package engine composes the scanner, config resolver, graph builder,
// symlink reconciler, and executor into the operations the CLI exposes.
package engine

import (
	"context"
	"log/slog"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/engine/executor"
	"github.com/tfgraph-io/tfgraph/pkg/graph"
	"github.com/tfgraph-io/tfgraph/pkg/scan"
	"github.com/tfgraph-io/tfgraph/pkg/terraform"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

// ToolRunner is the slice of the terraform runner the engine depends on.
type ToolRunner interface {
	RunOperation(ctx context.Context, req terraform.RunRequest) (*terraform.RunResult, error)
	ShowPlanJSON(ctx context.Context, dir, planFile string) ([]byte, error)
}

// EnvResolver materializes declared environment variables before dispatch.
type EnvResolver interface {
	Resolve(ctx context.Context, vars map[string]wrapper.EnvVar) (map[string]string, error)
}

// Engine wires the collaborators for one configuration tree.
type Engine struct {
	runner   ToolRunner
	wrappers *wrapper.Resolver
	envs     EnvResolver
	log      *slog.Logger
}

// New creates an engine over the given tool runner, wrapper config resolver,
// and environment variable resolver.
func New(runner ToolRunner, wrappers *wrapper.Resolver, envs EnvResolver) *Engine {
	return &Engine{
		runner:   runner,
		wrappers: wrappers,
		envs:     envs,
		log:      logging.New("engine"),
	}
}

// ApplyOptions configures a graph run.
type ApplyOptions struct {
	// Path is the root of the directory tree to execute.
	Path string

	Operation terraform.Operation

	// Parallelism bounds concurrent tool processes.
	Parallelism int

	// ResolveEnvVars materializes declared variables before dispatch. Off
	// when an outer invocation already resolved them.
	ResolveEnvVars bool
}

// Apply scans the tree, builds and reconciles the dependency graph, and
// executes the requested operation across it. Graph construction errors are
// returned before any tool invocation; per-directory failures are recorded
// in the summary, never returned as errors.
func (e *Engine) Apply(ctx context.Context, opts ApplyOptions) (*executor.RunSummary, error) {
	scanned, err := scan.Discover(opts.Path)
	if err != nil {
		return nil, err
	}
	e.log.Info("scanned configuration tree", "root", opts.Path, "directories", len(scanned.Directories))

	builder := graph.NewBuilder(e.wrappers)
	for _, dir := range scanned.Directories {
		if err := builder.AddDirectory(dir); err != nil {
			return nil, err
		}
	}
	g, err := builder.Build()
	if err != nil {
		return nil, err
	}
	graph.Connect(g, scanned.Symlinks)

	inv, err := e.prepare(ctx, g, opts)
	if err != nil {
		return nil, err
	}

	summary := executor.NewRunSummary()
	exec := executor.NewExecutor(inv, executor.Options{Parallelism: opts.Parallelism})

	runErr := exec.ExecuteGraph(ctx, g, summary)
	// The post-set runs regardless of how the graph fared.
	exec.ExecutePostSet(ctx, g.Post, summary)

	e.log.Info("run complete", "run_id", summary.RunID,
		"succeeded", len(summary.Succeeded()),
		"failed", len(summary.Failed()),
		"not_applied", len(summary.NotApplied()))
	return summary, runErr
}

// prepare resolves each directory's wrapper config and environment once, up
// front, so dispatch never races remote resolution and shared lookups hit
// the resolver cache.
func (e *Engine) prepare(ctx context.Context, g *graph.Graph, opts ApplyOptions) (*toolInvoker, error) {
	inv := &toolInvoker{
		runner:  e.runner,
		op:      opts.Operation,
		backend: make(map[string]bool),
	}

	nodes := make([]*graph.Node, 0, len(g.Nodes)+len(g.Post))
	for _, path := range g.SortedPaths() {
		nodes = append(nodes, g.Nodes[path])
	}
	nodes = append(nodes, g.Post...)

	for _, node := range nodes {
		cfg, err := e.wrappers.Resolve(node.Path)
		if err != nil {
			return nil, err
		}
		inv.backend[node.Path] = cfg.ConfigureBackend
		if opts.ResolveEnvVars {
			vars, err := e.envs.Resolve(ctx, cfg.EnvVars)
			if err != nil {
				return nil, err
			}
			node.EnvVars = vars
		}
	}
	return inv, nil
}

// toolInvoker adapts the terraform runner to the executor's Invoker
// contract, carrying the per-directory backend policy resolved during
// preparation.
type toolInvoker struct {
	runner  ToolRunner
	op      terraform.Operation
	backend map[string]bool
}

func (t *toolInvoker) Invoke(ctx context.Context, node *graph.Node) (*terraform.RunResult, error) {
	return t.runner.RunOperation(ctx, terraform.RunRequest{
		Dir:              node.Path,
		Operation:        t.op,
		Env:              node.EnvVars,
		ConfigureBackend: t.backend[node.Path],
	})
}
