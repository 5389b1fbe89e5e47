// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "milestone-sweeper",
	Short: "A CLI tool to close and reopen GitHub milestones by rule.",
	Long: `milestone-sweeper scans a repository's milestones and closes the ones
whose issues are all resolved, optionally reopening closed milestones
that have regained open issues. It is meant to run as an automation
step after pushes or on a schedule.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}
