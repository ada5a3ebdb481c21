package cli

import (
	"fmt"
	"io"

	"github.com/tfgraph-io/tfgraph/pkg/engine/executor"
	"github.com/tfgraph-io/tfgraph/pkg/graph"
)

// printResults writes each directory's captured output. With onlyChanges
// set, output is suppressed for directories whose run produced no diff.
func printResults(w io.Writer, summary *executor.RunSummary, onlyChanges bool) {
	for _, res := range summary.Results() {
		if res.Status == graph.StatusSkipped {
			continue
		}
		if onlyChanges && !res.HasDiff && res.Status != graph.StatusFailed {
			continue
		}
		fmt.Fprintf(w, "==> %s (%s)\n", res.Path, res.Status)
		if len(res.Output) > 0 {
			w.Write(res.Output)
			if res.Output[len(res.Output)-1] != '\n' {
				fmt.Fprintln(w)
			}
		}
		if res.Err != nil && len(res.Output) == 0 {
			fmt.Fprintf(w, "error: %v\n", res.Err)
		}
	}
}

// printSummary writes the end-of-run aggregate so operators see the full
// blast radius at once.
func printSummary(w io.Writer, summary *executor.RunSummary) {
	fmt.Fprintf(w, "\nRun %s: %d succeeded, %d failed, %d not applied\n",
		summary.RunID, len(summary.Succeeded()), len(summary.Failed()), len(summary.NotApplied()))

	if failed := summary.Failed(); len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed directories:")
		for _, dir := range failed {
			fmt.Fprintf(w, "  %s\n", dir)
		}
	}
	if skipped := summary.NotApplied(); len(skipped) > 0 {
		fmt.Fprintln(w, "\nNot applied (blocked by a failed or skipped dependency):")
		for _, dir := range skipped {
			if res := summary.Result(dir); res != nil && res.SkipCause != "" {
				fmt.Fprintf(w, "  %s (blocked by %s)\n", dir, res.SkipCause)
			} else {
				fmt.Fprintf(w, "  %s\n", dir)
			}
		}
	}
}
