package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nquery",
		Short: "Reactive signals and query caching for Go",
		Long: `nQuery is a reactive state and async query cache library for Go.

Signals, effects, and memos form a dependency-tracked reactive graph;
the query client layers a staleness-aware fetch cache on top. This CLI
ships the supporting tooling:

  • bench    — reactive-core load benchmark
  • devtools — run a demo client with the inspection server
  • version  — print build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		benchCmd(),
		devtoolsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
