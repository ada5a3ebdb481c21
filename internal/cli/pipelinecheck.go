package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tfgraph-io/tfgraph/pkg/pipeline"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

func newPipelineCheckCmd() *cobra.Command {
	var (
		pipelineDir string
		configDir   string
	)

	cmd := &cobra.Command{
		Use:   "pipeline-check [path-filters...]",
		Short: "Check pipeline manifests against the configuration tree",
		Long: `Compare the pipeline manifests against the configuration tree and report
three independent problem classes:

  - source directories absent from every manifest
  - manifest entries referencing nonexistent directories
  - directories listed more than once, within or across manifests

Optional positional path filters restrict the membership check to
directories under the given paths. Exit code 1 if any problem is found.

Examples:
  tfgraph pipeline-check --pipeline-dir ./pipelines --config-dir ./config
  tfgraph pipeline-check --pipeline-dir ./pipelines ./config/aws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifests, err := pipeline.LoadDir(pipelineDir)
			if err != nil {
				return err
			}
			wrappers, err := wrapper.NewResolver(configDir)
			if err != nil {
				return err
			}

			report, err := pipeline.Check(configDir, manifests, wrappers, args)
			if err != nil {
				return err
			}

			if len(report.Unlisted) > 0 {
				fmt.Fprintln(os.Stdout, "Source directories absent from every pipeline manifest:")
				for _, dir := range report.Unlisted {
					fmt.Fprintf(os.Stdout, "  %s\n", dir)
				}
			}
			if len(report.Dangling) > 0 {
				fmt.Fprintln(os.Stdout, "Manifest entries referencing nonexistent directories:")
				for _, ref := range report.Dangling {
					fmt.Fprintf(os.Stdout, "  %s (pipeline %s)\n", ref.Directory, ref.Manifest)
				}
			}
			if len(report.Duplicated) > 0 {
				fmt.Fprintln(os.Stdout, "Directories listed more than once:")
				for _, dir := range report.Duplicated {
					fmt.Fprintf(os.Stdout, "  %s\n", dir)
				}
			}

			if !report.Clean() {
				return withExitCode(ExitFailure, fmt.Errorf("pipeline manifests are inconsistent"))
			}
			fmt.Fprintln(os.Stdout, "Pipeline manifests are consistent with the configuration tree.")
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelineDir, "pipeline-dir", "", "Directory containing pipeline manifests (required)")
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "Root of the configuration tree")
	_ = cmd.MarkFlagRequired("pipeline-dir")

	return cmd
}
