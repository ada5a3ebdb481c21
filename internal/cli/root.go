// Package cli implements the tfgraph CLI commands.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tfgraph-io/tfgraph/internal/logging"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tfgraph",
	Short: "Dependency-ordered terraform execution across a configuration tree",
	Long: `tfgraph orchestrates terraform (or OpenTofu) across a tree of
configuration directories with inter-directory dependencies.

It builds a dependency graph from declared and inferred relationships,
executes directories in parallel in a safe order, propagates failures so
dependents of a broken directory are never applied, and can narrow a run
to just the directories affected by a source change.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tfgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	viper.SetEnvPrefix("TFGRAPH")
	viper.AutomaticEnv()
	viper.SetDefault("binary", "terraform")
	viper.SetDefault("log-format", "text")

	// Add subcommands
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newPlanCheckCmd())
	rootCmd.AddCommand(newBackendCheckCmd())
	rootCmd.AddCommand(newPipelineCheckCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.tfgraph")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logging.Init(level, viper.GetString("log-format"))
}
