// Package main provides the tfgraph CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/tfgraph-io/tfgraph/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
