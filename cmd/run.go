package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgeworks/prdpilot/internal/agent"
	"github.com/forgeworks/prdpilot/internal/campaign"
	"github.com/forgeworks/prdpilot/internal/config"
	"github.com/forgeworks/prdpilot/internal/history"
	"github.com/forgeworks/prdpilot/internal/prd"
	"github.com/forgeworks/prdpilot/internal/repo"

	// Register available engines
	_ "github.com/forgeworks/prdpilot/internal/agent/claude"
)

var (
	engineFlag      string
	budgetFlag      int
	autoMergeFlag   bool
	yesFlag         bool
	workspaceFlag   string
	integrationFlag string
	progressLogFlag string
	selfPathFlag    string
)

var runCmd = &cobra.Command{
	Use:   "run <prd.json> [<prd.json>...]",
	Short: "Run a campaign over one or more PRDs",
	Long: `Run a campaign: validate every PRD upfront, skip the ones already
complete, then for each pending PRD check out its branch across the root
repository and all submodules, drive the agent until the PRD completes,
and (when enabled) merge the feature branch into the integration branch.

Auto-merge defaults to on when more than one PRD is pending.

Examples:
  prdpilot run phase-1.json
  prdpilot run phase-*.json --yes
  prdpilot run phase-2.json --budget 30 --auto-merge=false`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&engineFlag, "engine", "e", "", "Engine to use (default from config, claude)")
	runCmd.Flags().IntVar(&budgetFlag, "budget", 0, "Iteration budget per PRD (default: task count x 3)")
	runCmd.Flags().BoolVar(&autoMergeFlag, "auto-merge", false, "Merge each completed PRD's branch (default: on when multiple PRDs pending)")
	runCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
	runCmd.Flags().StringVar(&workspaceFlag, "workspace", ".", "Root repository of the multi-repo workspace")
	runCmd.Flags().StringVar(&integrationFlag, "integration-branch", "", "Branch completed work merges into (default from config, main)")
	runCmd.Flags().StringVar(&progressLogFlag, "progress-log", "", "Shared progress log path (default from config)")
	runCmd.Flags().StringVar(&selfPathFlag, "self", "", "Orchestrator's own submodule path, excluded from git operations")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	eng, err := agent.New(opts.EngineName)
	if err != nil {
		return err
	}

	display := agent.NewDisplay(os.Stdout)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	installInterruptHandler(cancel)

	repair := func(path string) error {
		display.ShowWarning("%s is malformed; attempting agent repair\n", path)
		return prd.Repair(ctx, eng, path, display)
	}

	plan, err := campaign.BuildPlan(args, opts, repair)
	if err != nil {
		return err
	}

	set, err := repo.Discover(workspaceFlag, opts.SelfPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.ProgressLog), 0755); err != nil {
		return fmt.Errorf("failed to create progress log directory: %w", err)
	}

	runner := &campaign.Runner{
		Engine:  eng,
		Display: display,
		Coord: &workspaceCoordinator{
			set:   set,
			coord: repo.NewCoordinator(os.Stdout),
		},
		Confirm: confirmOnStdin,
	}

	store, histErr := history.Open(filepath.Join(workspaceFlag, config.Dir), os.Stderr)
	if histErr != nil {
		display.ShowWarning("history disabled: %v\n", histErr)
	} else {
		runner.History = store
	}

	_, err = runner.Run(ctx, plan)

	if store != nil {
		store.Finish(finishState(err))
	}

	var conflict *repo.MergeConflictError
	if errors.As(err, &conflict) {
		fmt.Fprintln(os.Stderr, conflict.Instructions())
	}

	return err
}

func finishState(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, campaign.ErrUsageLimit):
		return "usage-limit"
	case errors.Is(err, campaign.ErrBudgetExhausted):
		return "budget-exhausted"
	case errors.Is(err, campaign.ErrAgentFailure):
		return "agent-failure"
	case errors.Is(err, campaign.ErrAborted):
		return "aborted"
	default:
		return "error"
	}
}

// buildOptions merges config-file defaults with flag overrides.
func buildOptions(cmd *cobra.Command) (campaign.Options, error) {
	cfg, err := config.Load(workspaceFlag)
	if err != nil {
		return campaign.Options{}, err
	}

	opts := campaign.Options{
		BudgetOverride:    budgetFlag,
		Yes:               yesFlag,
		EngineName:        cfg.Engine,
		ProgressLog:       cfg.ProgressLog,
		IntegrationBranch: cfg.IntegrationBranch,
		SelfPath:          cfg.SelfPath,
	}

	if engineFlag != "" {
		opts.EngineName = engineFlag
	}
	if integrationFlag != "" {
		opts.IntegrationBranch = integrationFlag
	}
	if progressLogFlag != "" {
		opts.ProgressLog = progressLogFlag
	}
	if selfPathFlag != "" {
		opts.SelfPath = selfPathFlag
	}
	if cmd.Flags().Changed("auto-merge") {
		opts.AutoMerge = &autoMergeFlag
	}

	return opts, nil
}

// installInterruptHandler wires two-stage cancellation: the first
// interrupt requests a graceful stop between iterations, the second
// terminates immediately.
func installInterruptHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupt received, finishing the current iteration (interrupt again to force quit)")
		cancel()
		<-sigCh
		os.Exit(130)
	}()
}

func confirmOnStdin() bool {
	fmt.Print("Proceed? [y/N] ")
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// workspaceCoordinator adapts the repo package to the campaign's
// Coordinator interface, binding the discovered repository set.
type workspaceCoordinator struct {
	set   *repo.Set
	coord *repo.Coordinator
}

func (w *workspaceCoordinator) EnsureBranches(branch string) error {
	return w.coord.EnsureBranches(w.set, branch)
}

func (w *workspaceCoordinator) Merge(feature, integration string) error {
	return w.coord.MergeAll(w.set, feature, integration)
}
