package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "saha",
		Short: "Agentic execution loop orchestrator",
		Long: `saha drives coding agents through an implement, verify, fix loop.
Each task runs through implementation, QA, code quality, bookkeeping and
completion-check phases until done or the iteration ceiling is hit. State
persists per task, so interrupted runs resume where they stopped.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
