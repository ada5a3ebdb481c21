package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tfgraph-io/tfgraph/pkg/engine/executor"
	"github.com/tfgraph-io/tfgraph/pkg/graph"
	"github.com/tfgraph-io/tfgraph/pkg/impact"
	"github.com/tfgraph-io/tfgraph/pkg/scan"
	"github.com/tfgraph-io/tfgraph/pkg/terraform"
)

// PlanCheckOptions configures a plan-check run.
type PlanCheckOptions struct {
	// Path is the root of the tree to check.
	Path string

	// ChangedFiles narrows the run to directories affected by these files.
	// Nil checks every source directory; an empty non-nil slice checks
	// nothing.
	ChangedFiles []string

	// Parallelism bounds concurrent plan processes for regular directories.
	// Symlinked directories always run sequentially, after the regular
	// batch, since aliases may share state with their targets.
	Parallelism int

	// SkipIAM disables the privilege-sensitive change scan.
	SkipIAM bool

	// Colors enables ANSI color in captured plan output.
	Colors bool

	// OutputDir, when set, receives a per-directory snapshot tree holding
	// the binary plan artifact and its structured JSON form.
	OutputDir string

	ResolveEnvVars bool
}

// PlanCheck plans the selected directories without ordering constraints and
// scans the output for privilege-sensitive changes. Selection honors the
// change-impact analysis when ChangedFiles is set.
func (e *Engine) PlanCheck(ctx context.Context, opts PlanCheckOptions) (*executor.RunSummary, error) {
	regular, symlinked, err := e.selectDirectories(ctx, opts)
	if err != nil {
		return nil, err
	}
	e.log.Info("plan-check selection", "regular", len(regular), "symlinked", len(symlinked))

	var snap *terraform.Snapshotter
	if opts.OutputDir != "" {
		snap, err = terraform.NewSnapshotter(opts.Path, opts.OutputDir)
		if err != nil {
			return nil, err
		}
	}

	summary := executor.NewRunSummary()
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}

	var mu sync.Mutex
	runOne := func(dir string) error {
		res := e.planOne(ctx, dir, opts, snap)
		mu.Lock()
		summary.Record(res)
		mu.Unlock()
		return nil
	}

	eg := &errgroup.Group{}
	eg.SetLimit(parallelism)
	for _, dir := range regular {
		eg.Go(func() error { return runOne(dir) })
	}
	_ = eg.Wait()

	for _, dir := range symlinked {
		_ = runOne(dir)
	}

	return summary, nil
}

// selectDirectories picks the directories a plan-check covers: the impact
// analysis result for a changed-file run, or every opted-in source
// directory otherwise.
func (e *Engine) selectDirectories(ctx context.Context, opts PlanCheckOptions) (regular, symlinked []string, err error) {
	if opts.ChangedFiles != nil {
		analyzer := impact.NewAnalyzer(e.wrappers)
		return analyzer.Affected(ctx, opts.ChangedFiles, opts.Path)
	}

	scanned, err := scan.Discover(opts.Path)
	if err != nil {
		return nil, nil, err
	}
	for _, dir := range scanned.Directories {
		cfg, err := e.wrappers.Resolve(dir.Path)
		if err != nil {
			return nil, nil, err
		}
		if !cfg.PlanCheck {
			continue
		}
		if dir.Kind == scan.KindSymlink {
			symlinked = append(symlinked, dir.Path)
		} else {
			regular = append(regular, dir.Path)
		}
	}
	return regular, symlinked, nil
}

// planOne plans a single directory, scans its output, and converts the plan
// artifact when snapshots are requested. Conversion failure counts as a tool
// failure for the directory.
func (e *Engine) planOne(ctx context.Context, dir string, opts PlanCheckOptions, snap *terraform.Snapshotter) *executor.NodeResult {
	out := &executor.NodeResult{Path: dir}

	cfg, err := e.wrappers.Resolve(dir)
	if err != nil {
		out.Status = graph.StatusFailed
		out.Err = err
		return out
	}

	req := terraform.RunRequest{
		Dir:              dir,
		Operation:        terraform.OperationPlan,
		ConfigureBackend: cfg.ConfigureBackend,
		Colors:           opts.Colors,
	}

	if opts.ResolveEnvVars {
		req.Env, err = e.envs.Resolve(ctx, cfg.EnvVars)
		if err != nil {
			out.Status = graph.StatusFailed
			out.Err = err
			return out
		}
	}

	if snap != nil {
		req.PlanFile, err = snap.PlanFile(dir)
		if err != nil {
			out.Status = graph.StatusFailed
			out.Err = err
			return out
		}
	}

	res, err := e.runner.RunOperation(ctx, req)
	if err != nil {
		out.Status = graph.StatusFailed
		out.Err = err
		return out
	}

	out.Output = res.Output
	out.HasDiff = res.HasDiff
	if res.Failed() {
		out.Status = graph.StatusFailed
		e.log.Error("plan failed", "dir", dir, "exit_code", res.ExitCode)
		return out
	}

	out.Status = graph.StatusSucceeded
	if !opts.SkipIAM {
		out.IAMChanges = terraform.HasIAMChanges(res.Output)
		if out.IAMChanges {
			e.log.Warn("privilege-sensitive changes detected", "dir", dir)
		}
	}

	if snap != nil {
		data, err := e.runner.ShowPlanJSON(ctx, dir, req.PlanFile)
		if err == nil {
			err = snap.WriteJSON(dir, data)
		}
		if err != nil {
			out.Status = graph.StatusFailed
			out.Err = err
		}
	}
	return out
}
