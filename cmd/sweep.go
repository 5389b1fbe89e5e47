// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/naka-gawa/milestone-sweeper/internal/domain"
	"github.com/naka-gawa/milestone-sweeper/internal/gateway"
	"github.com/naka-gawa/milestone-sweeper/internal/usecase"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweeps a repository's milestones and outputs the actions as JSON",
	Long: `Sweeps the milestones of the specified repository: milestones with at
least --min-issues issues and none of them still open are closed, and
with --reopen-active closed milestones that regained open issues are
reopened. The actions taken are printed as JSON; --debug-only reports
them without changing anything.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		// Get the verbose flag from the root command to set up the logger.
		verbose, _ := cmd.InheritedFlags().GetBool("verbose")
		logger := log.New(io.Discard, "", log.LstdFlags) // Default: discard all logs.
		if verbose {
			logger.SetOutput(os.Stderr) // If verbose, log to standard error.
		}

		// Get other flags.
		owner, _ := cmd.Flags().GetString("owner")
		repo, _ := cmd.Flags().GetString("repo")
		minIssues, _ := cmd.Flags().GetInt("min-issues")
		relatedOnly, _ := cmd.Flags().GetBool("related-only")
		relatedActive, _ := cmd.Flags().GetBool("related-active")
		reopenActive, _ := cmd.Flags().GetBool("reopen-active")
		debugOnly, _ := cmd.Flags().GetBool("debug-only")
		sha, _ := cmd.Flags().GetString("sha")
		if sha == "" {
			sha = os.Getenv("GITHUB_SHA")
		}

		// Validation failures abort before any fetch occurs.
		if minIssues < 0 {
			fmt.Fprintf(os.Stderr, "Error: --min-issues must be non-negative, got %d.\n", minIssues)
			os.Exit(1)
		}
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			fmt.Fprintln(os.Stderr, "Error: GITHUB_TOKEN environment variable is not set.")
			os.Exit(1)
		}

		opts := domain.Options{
			Owner:         owner,
			Repo:          repo,
			CommitSHA:     sha,
			MinimumIssues: minIssues,
			RelatedOnly:   relatedOnly,
			RelatedActive: relatedActive,
			ReopenActive:  reopenActive,
			DebugOnly:     debugOnly,
		}

		// Inject dependencies and run the main business logic.
		source, err := gateway.NewGitHubGateway(token, owner, repo, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create GitHub gateway: %v\n", err)
			os.Exit(1)
		}
		processor := usecase.NewProcessor(source, opts, logger)

		report, err := processor.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sweep milestones: %v\n", err)
			os.Exit(1)
		}

		// Marshal the report into a pretty-printed JSON string.
		jsonData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to marshal report to JSON: %v\n", err)
			os.Exit(1)
		}

		// Print the final JSON to standard output.
		fmt.Println(string(jsonData))
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringP("owner", "o", "", "Repository owner (required)")
	sweepCmd.Flags().StringP("repo", "r", "", "Repository name (required)")
	sweepCmd.MarkFlagRequired("owner")
	sweepCmd.MarkFlagRequired("repo")
	sweepCmd.Flags().Int("min-issues", 0, "Minimum number of issues a milestone needs before it may be closed")
	sweepCmd.Flags().Bool("related-only", false, "Only consider milestones linked to the triggering commit's pull requests")
	sweepCmd.Flags().Bool("related-active", false, "Reserved: widen the related set via open PRs and issues (currently only enables related mode)")
	sweepCmd.Flags().Bool("reopen-active", false, "Reopen closed milestones that have open issues again")
	sweepCmd.Flags().Bool("debug-only", false, "Record intended actions without changing any milestone")
	sweepCmd.Flags().String("sha", "", "Trigger commit for related mode (defaults to $GITHUB_SHA)")
}
