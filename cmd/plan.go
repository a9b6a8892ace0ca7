package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeworks/prdpilot/internal/agent"
	"github.com/forgeworks/prdpilot/internal/campaign"
)

var planCmd = &cobra.Command{
	Use:   "plan <prd.json> [<prd.json>...]",
	Short: "Show the execution plan without running anything",
	Long: `Validate the given PRDs and print the plan the run command would
execute: which PRDs are already complete, which are pending, their task
counts, computed iteration budgets, and the auto-merge policy. No
branches are touched and no agent is invoked.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().IntVar(&budgetFlag, "budget", 0, "Iteration budget per PRD (default: task count x 3)")
	planCmd.Flags().BoolVar(&autoMergeFlag, "auto-merge", false, "Merge each completed PRD's branch (default: on when multiple PRDs pending)")
	planCmd.Flags().StringVar(&workspaceFlag, "workspace", ".", "Root repository of the multi-repo workspace")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	// No repair on a dry run; a malformed store is reported as-is.
	plan, err := campaign.BuildPlan(args, opts, nil)
	if err != nil {
		return err
	}

	display := agent.NewDisplay(os.Stdout)
	for _, w := range plan.Warnings {
		display.ShowWarning("%s\n", w)
	}

	fmt.Printf("Already complete: %d\n", len(plan.Complete))
	for _, p := range plan.Complete {
		fmt.Printf("  [done] %s (%d/%d tasks)\n", p.Path, p.TasksDone, p.TasksTotal)
	}

	fmt.Printf("Pending: %d\n", len(plan.Pending))
	for _, p := range plan.Pending {
		fmt.Printf("  [todo] %s  branch=%s  tasks=%d/%d  budget=%d\n",
			p.Path, p.PRD.Branch, p.TasksDone, p.TasksTotal, p.Budget)
	}

	if plan.AutoMerge {
		fmt.Printf("Auto-merge: on (into %s)\n", plan.IntegrationBranch)
	} else {
		fmt.Println("Auto-merge: off")
	}

	return nil
}
