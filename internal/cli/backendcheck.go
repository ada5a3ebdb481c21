package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tfgraph-io/tfgraph/pkg/engine"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

func newBackendCheckCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "backend-check [paths...]",
		Short: "Verify directories declare a remote state backend",
		Long: `Check that each given configuration directory declares a remote state
backend (a terraform backend or cloud block). Directories whose wrapper
config sets pipeline_check to false are exempt.

File arguments are resolved to their containing directory. Exit code 1 if
any checked directory lacks a backend.

Examples:
  tfgraph backend-check ./config/aws/core
  tfgraph backend-check --config-dir ./config ./config/aws/*`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wrappers, err := wrapper.NewResolver(configDir)
			if err != nil {
				return err
			}

			missing, err := engine.CheckBackends(args, wrappers)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				fmt.Fprintln(os.Stdout, "Directories without a remote state backend:")
				for _, dir := range missing {
					fmt.Fprintf(os.Stdout, "  %s\n", dir)
				}
				return withExitCode(ExitFailure,
					fmt.Errorf("%d directories lack a remote state backend", len(missing)))
			}

			fmt.Fprintln(os.Stdout, "All checked directories declare a remote state backend.")
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", ".", "Root of the configuration tree for wrapper config resolution")

	return cmd
}
