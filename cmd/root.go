// Package cmd implements the CLI surface: a single "serve" entry point that
// wires the control plane together and runs it until interrupted.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskrunner",
	Short: "An in-memory job scheduling and pipeline execution service",
	Long: "taskrunner runs scheduled tasks and task-group pipelines in memory, " +
		"exposed over an HTTP control plane, with their invocations recorded " +
		"to a rolling log file.",
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
