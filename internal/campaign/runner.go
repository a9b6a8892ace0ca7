package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgeworks/prdpilot/internal/agent"
	"github.com/forgeworks/prdpilot/internal/loop"
	"github.com/forgeworks/prdpilot/internal/prompt"
)

// Sentinel errors for the campaign's distinguished failure modes. The
// CLI maps these to exit codes: usage limit 2, budget exhausted 3,
// everything else 1.
var (
	ErrUsageLimit      = errors.New("agent usage limit reached")
	ErrBudgetExhausted = errors.New("iteration budget exhausted")
	ErrAgentFailure    = errors.New("agent invocation failed")
	ErrAborted         = errors.New("campaign aborted before any work")
)

// Coordinator is the branch-management surface the runner needs.
type Coordinator interface {
	// EnsureBranches puts every repository on the given branch.
	EnsureBranches(branch string) error
	// Merge merges feature into integration across every repository,
	// submodules first, root last.
	Merge(feature, integration string) error
}

// Recorder persists per-PRD outcomes. Implementations must be
// best-effort; recording never fails a campaign.
type Recorder interface {
	RecordPRD(path, state string, iterations, tasksDone, tasksTotal int)
}

// Progress is the explicit run state threaded through the campaign and
// returned to the caller; there is no hidden shared mutable state.
type Progress struct {
	CompletedPRDs []string
	RemainingPRDs []string
	Iterations    int
}

// Runner executes a campaign plan.
type Runner struct {
	Engine  agent.Engine
	Display *agent.Display
	Coord   Coordinator
	History Recorder      // optional
	Confirm func() bool   // consulted when the plan is not auto-confirmed
	Delay   time.Duration // inter-iteration delay, passed to the loop
}

// Run processes the plan's pending PRDs strictly in order. Already-
// complete PRDs get no branch checkouts and no agent invocations. Every
// fatal path reports which PRDs are done and which remain.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Progress, error) {
	progress := &Progress{}
	for _, p := range plan.Pending {
		progress.RemainingPRDs = append(progress.RemainingPRDs, p.Path)
	}

	for _, w := range plan.Warnings {
		r.Display.ShowWarning("%s\n", w)
	}
	r.Display.ShowInfo("PRDs: %d already complete, %d pending\n", len(plan.Complete), len(plan.Pending))

	if len(plan.Pending) == 0 {
		r.Display.ShowSuccess("Nothing to do: every PRD is already complete")
		return progress, nil
	}

	r.showPlan(plan)

	if !plan.Yes && r.Confirm != nil && !r.Confirm() {
		return progress, ErrAborted
	}

	r.Display.ShowCampaignHeader(r.Engine.Name(), len(plan.Pending), len(plan.Pending)+len(plan.Complete))

	for i, p := range plan.Pending {
		r.Display.ShowPRDHeader(p.PRD.Name(), p.PRD.Branch, p.Budget)

		if err := r.Coord.EnsureBranches(p.PRD.Branch); err != nil {
			r.report(progress)
			return progress, fmt.Errorf("failed to prepare branches for %s: %w", p.Path, err)
		}

		payload := prompt.Build(prompt.Params{
			TaskStorePath:       p.Path,
			ProgressLogPath:     plan.ProgressLog,
			GeneralInstructions: p.PRD.GeneralInstructions,
		})

		outcome := loop.Run(ctx, loop.Config{
			PRDPath: p.Path,
			Prompt:  payload,
			Engine:  r.Engine,
			Display: r.Display,
			Budget:  p.Budget,
			Delay:   r.Delay,
		})

		progress.Iterations += outcome.Iterations
		if r.History != nil {
			r.History.RecordPRD(p.Path, outcome.State.String(), outcome.Iterations, outcome.TasksDone, outcome.TasksTotal)
		}

		switch outcome.State {
		case loop.Completed:
			progress.CompletedPRDs = append(progress.CompletedPRDs, p.Path)
			progress.RemainingPRDs = progress.RemainingPRDs[1:]
			r.Display.ShowSuccess(fmt.Sprintf("%s complete (%d/%d tasks)", p.PRD.Name(), outcome.TasksDone, outcome.TasksTotal))

			if plan.AutoMerge && i < len(plan.Pending)-1 {
				r.Display.ShowInfo("Merging %s into %s across all repositories\n", p.PRD.Branch, plan.IntegrationBranch)
				if err := r.Coord.Merge(p.PRD.Branch, plan.IntegrationBranch); err != nil {
					// Partial cross-repo merges are unsafe to continue past.
					r.report(progress)
					return progress, err
				}
			}

		case loop.UsageLimitShutdown:
			r.Display.ShowError("agent service reported a usage limit; stopping gracefully")
			r.report(progress)
			return progress, fmt.Errorf("%w after %d iteration(s) on %s", ErrUsageLimit, outcome.Iterations, p.Path)

		case loop.BudgetExhausted:
			r.Display.ShowError(fmt.Sprintf("budget of %d iterations exhausted with %d/%d tasks done", p.Budget, outcome.TasksDone, outcome.TasksTotal))
			r.Display.ShowInfo("Re-run with a larger budget, e.g. --budget %d\n", p.Budget*2)
			r.report(progress)
			return progress, fmt.Errorf("%w on %s", ErrBudgetExhausted, p.Path)

		case loop.AgentFailure:
			r.report(progress)
			return progress, fmt.Errorf("%w on %s (iteration %d): %v", ErrAgentFailure, p.Path, outcome.Iterations, outcome.Err)

		case loop.Interrupted:
			r.Display.ShowWarning("interrupted; stopping after the in-flight iteration\n")
			r.report(progress)
			return progress, outcome.Err

		default:
			r.report(progress)
			return progress, outcome.Err
		}
	}

	r.Display.ShowSuccess(fmt.Sprintf("Campaign complete: %d PRD(s), %d iteration(s)", len(progress.CompletedPRDs), progress.Iterations))
	return progress, nil
}

func (r *Runner) showPlan(plan *Plan) {
	r.Display.ShowInfo("\nExecution plan:\n")
	for _, p := range plan.Pending {
		r.Display.ShowInfo("  %s  branch=%s  tasks=%d/%d  budget=%d\n",
			p.Path, p.PRD.Branch, p.TasksDone, p.TasksTotal, p.Budget)
	}
	merge := "off"
	if plan.AutoMerge {
		merge = "on (into " + plan.IntegrationBranch + ")"
	}
	r.Display.ShowInfo("  auto-merge: %s\n\n", merge)
}

// report prints done vs remaining so a human can resume without
// re-deriving progress. Task-level progress is already durable in the
// task stores themselves.
func (r *Runner) report(progress *Progress) {
	r.Display.ShowInfo("\nCompleted PRDs: %d\n", len(progress.CompletedPRDs))
	for _, path := range progress.CompletedPRDs {
		r.Display.ShowInfo("  [done] %s\n", path)
	}
	r.Display.ShowInfo("Remaining PRDs: %d\n", len(progress.RemainingPRDs))
	for _, path := range progress.RemainingPRDs {
		r.Display.ShowInfo("  [todo] %s\n", path)
	}
}
