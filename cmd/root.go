package cmd

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forgeworks/prdpilot/internal/campaign"
)

var rootCmd = &cobra.Command{
	Use:   "prdpilot",
	Short: "prdpilot - drives an AI coding agent through PRD task lists",
	Long: `prdpilot runs a campaign of PRDs (phased task lists) across a
multi-repository workspace, invoking an AI coding agent until every task
passes, committing and merging branches as PRDs complete.

Workflow:
  prdpilot plan phase-*.json     Show the execution plan without running
  prdpilot run phase-*.json      Run the campaign

Exit codes:
  0  success
  1  validation or general error
  2  usage-limit graceful shutdown (resumable)
  3  iteration budget exhausted`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Agent CLIs read their credentials from the environment.
		_ = godotenv.Load()
	},
}

// Execute runs the root command, mapping the campaign error taxonomy to
// distinguished exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, campaign.ErrUsageLimit):
		return 2
	case errors.Is(err, campaign.ErrBudgetExhausted):
		return 3
	default:
		return 1
	}
}
