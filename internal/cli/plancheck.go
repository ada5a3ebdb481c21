package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/tfgraph-io/tfgraph/pkg/audit"
	"github.com/tfgraph-io/tfgraph/pkg/engine"
	"github.com/tfgraph-io/tfgraph/pkg/gitutil"
	"github.com/tfgraph-io/tfgraph/pkg/graph"
)

func newPlanCheckCmd() *cobra.Command {
	var (
		path             string
		skipIAM          bool
		modifiedOnly     bool
		printDiff        bool
		withColors       bool
		parallelJobs     int
		outputDir        string
		noResolveEnvVars bool
	)

	cmd := &cobra.Command{
		Use:   "plan-check",
		Short: "Plan directories and scan for failures and IAM changes",
		Long: `Run a read-only plan across configuration directories and classify the
results: clean, pending changes, tool failure, or privilege-sensitive (IAM)
changes.

With --modified-only, only directories transitively affected by files
changed in the surrounding git work tree are planned. With --output-dir, a
snapshot tree mirroring source-relative paths is written, each directory
holding the binary plan artifact and its structured JSON form.

Exit codes: 0 clean, 1 tool failure, 3 IAM changes detected, 4 both.

Examples:
  tfgraph plan-check --path ./config
  tfgraph plan-check --path ./config --modified-only --parallel-jobs 8
  tfgraph plan-check --path ./config --output-dir ./plans --skip-iam`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if parallelJobs <= 0 {
				return fmt.Errorf("--parallel-jobs must be a positive integer, got %d", parallelJobs)
			}
			if !cmd.Flags().Changed("with-colors") {
				withColors = term.IsTerminal(int(os.Stdout.Fd()))
			}

			var changedFiles []string
			if modifiedOnly {
				var err error
				changedFiles, err = gitutil.ModifiedFiles(path)
				if err != nil {
					return err
				}
				if changedFiles == nil {
					changedFiles = []string{}
				}
			}

			eng, runner, err := buildEngine(path)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := runner.CheckVersion(ctx); err != nil {
				return err
			}

			summary, err := eng.PlanCheck(ctx, engine.PlanCheckOptions{
				Path:           path,
				ChangedFiles:   changedFiles,
				Parallelism:    parallelJobs,
				SkipIAM:        skipIAM,
				Colors:         withColors,
				OutputDir:      outputDir,
				ResolveEnvVars: !noResolveEnvVars,
			})
			if err != nil {
				return err
			}

			for _, res := range summary.Results() {
				if res.Status == graph.StatusFailed || (printDiff && res.HasDiff) {
					fmt.Fprintf(os.Stdout, "==> %s (%s)\n", res.Path, res.Status)
					os.Stdout.Write(res.Output)
				}
			}
			printSummary(os.Stdout, summary)

			if url := viper.GetString("audit-url"); url != "" {
				audit.NewClient(url).Report(ctx, "plan-check", summary)
			}

			failed := summary.HasFailures()
			iam := summary.HasIAMChanges()
			switch {
			case failed && iam:
				return withExitCode(ExitIAMAndFailure,
					fmt.Errorf("plan failures and IAM changes detected"))
			case iam:
				return withExitCode(ExitIAM, fmt.Errorf("IAM changes detected"))
			case failed:
				return withExitCode(ExitFailure,
					fmt.Errorf("%d directories failed", len(summary.Failed())))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Root of the configuration tree to check")
	cmd.Flags().BoolVar(&skipIAM, "skip-iam", false, "Skip the privilege-sensitive change scan")
	cmd.Flags().BoolVar(&modifiedOnly, "modified-only", false, "Only check directories affected by modified files (requires a git work tree)")
	cmd.Flags().BoolVar(&printDiff, "print-diff", false, "Print plan output for directories with pending changes")
	cmd.Flags().BoolVar(&withColors, "with-colors", false, "Force ANSI colors in plan output (defaults to on for terminals)")
	cmd.Flags().IntVar(&parallelJobs, "parallel-jobs", 4, "Maximum concurrent plan processes")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Write per-directory plan snapshots under this directory")
	cmd.Flags().BoolVar(&noResolveEnvVars, "no-resolve-envvars", false, "Skip environment variable resolution (already resolved by an outer invocation)")
	_ = cmd.Flags().MarkHidden("no-resolve-envvars")

	return cmd
}
