// Package loop runs the per-PRD iteration state machine: invoke the
// agent, inspect its output for control signals, re-read the task store,
// and decide whether to stop or go again.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/forgeworks/prdpilot/internal/agent"
	"github.com/forgeworks/prdpilot/internal/prd"
	"github.com/forgeworks/prdpilot/internal/sentinel"
)

// State is the terminal (or in-flight) state of an iteration loop.
type State int

const (
	// Running is the in-flight state; it only appears in an Outcome when
	// the loop stopped for an orchestrator-side reason (see Outcome.Err).
	Running State = iota
	// Completed means every task in the PRD is done.
	Completed
	// UsageLimitShutdown means the agent service refused work due to
	// quota/billing/rate constraints; the run is resumable.
	UsageLimitShutdown
	// BudgetExhausted means the iteration budget ran out before the PRD
	// completed.
	BudgetExhausted
	// AgentFailure means the agent process itself failed to run.
	AgentFailure
	// Interrupted means an external interrupt stopped the loop between
	// iterations.
	Interrupted
)

func (s State) String() string {
	switch s {
	case Completed:
		return "completed"
	case UsageLimitShutdown:
		return "usage-limit-shutdown"
	case BudgetExhausted:
		return "budget-exhausted"
	case AgentFailure:
		return "agent-failure"
	case Interrupted:
		return "interrupted"
	default:
		return "running"
	}
}

// BudgetMultiplier is the default per-task iteration allowance. A task
// typically needs more than one agent turn to implement, test, review,
// and commit.
const BudgetMultiplier = 3

// Budget computes the iteration budget for a PRD: the override when one
// is supplied, otherwise taskCount * BudgetMultiplier.
func Budget(taskCount, override int) int {
	if override > 0 {
		return override
	}
	return taskCount * BudgetMultiplier
}

// Config holds everything one loop run needs.
type Config struct {
	PRDPath string         // Task store path; re-read after every iteration
	Prompt  string         // Fixed instruction payload for the agent
	Engine  agent.Engine   // External agent integration
	Display *agent.Display // Console surface
	Budget  int            // Maximum iterations
	Delay   time.Duration  // Pause between iterations (default 2s)
}

// Outcome is the loop's final report.
type Outcome struct {
	State      State
	Iterations int
	TasksDone  int
	TasksTotal int
	Err        error
}

// Run executes the iteration loop for one PRD. The task store on disk is
// the single source of truth for completion: the agent mutates it
// out-of-process, so the orchestrator re-reads it after every iteration
// and never trusts a cached copy. Textual signals from the transcript
// are advisory only, except the usage-limit signal which forces a
// graceful shutdown. Cancellation is honored between iterations, never
// mid-invocation.
func Run(ctx context.Context, cfg Config) Outcome {
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}

	p, err := prd.Load(cfg.PRDPath)
	if err != nil {
		return Outcome{State: Running, Err: fmt.Errorf("failed to load task store: %w", err)}
	}

	done, total := p.Counts()
	out := Outcome{TasksDone: done, TasksTotal: total}

	if total == 0 {
		cfg.Display.ShowWarning("%s has no tasks; treating as complete\n", p.Name())
		out.State = Completed
		return out
	}

	for i := 1; i <= cfg.Budget; i++ {
		var taskInfo *agent.TaskInfo
		if t := p.NextTask(); t != nil {
			taskInfo = &agent.TaskInfo{ID: t.ID, Title: t.Title}
		}
		cfg.Display.ShowIterationHeader(i, cfg.Budget, taskInfo)

		// The engine runs on a context detached from the cancellable one
		// so an interrupt never kills the in-flight agent process; its
		// own timeout still applies. Cancellation takes effect between
		// iterations only.
		res := cfg.Engine.Execute(context.WithoutCancel(ctx), cfg.Prompt, cfg.Display)
		out.Iterations = i

		if res.Err != nil {
			if ctx.Err() != nil {
				out.State = Interrupted
				out.Err = ctx.Err()
				return out
			}
			// A broken agent integration will not fix itself by iterating.
			cfg.Display.ShowError(res.Err.Error())
			out.State = AgentFailure
			out.Err = res.Err
			return out
		}

		sig := sentinel.Scan(res.Output)
		if sig == sentinel.UsageLimit {
			out.State = UsageLimitShutdown
			return out
		}

		// Authoritative check: re-read the store the agent just mutated.
		p, err = prd.Load(cfg.PRDPath)
		if err != nil {
			out.State = Running
			out.Err = fmt.Errorf("failed to re-read task store after iteration %d: %w", i, err)
			return out
		}
		out.TasksDone, out.TasksTotal = p.Counts()

		if p.IsComplete() {
			out.State = Completed
			return out
		}

		if sig == sentinel.Complete {
			// The marker is an early-exit signal; note the disagreement
			// with the store so the user can investigate.
			cfg.Display.ShowWarning("agent signaled completion with %d/%d tasks marked done\n", out.TasksDone, out.TasksTotal)
			out.State = Completed
			return out
		}

		if ctx.Err() != nil {
			out.State = Interrupted
			out.Err = ctx.Err()
			return out
		}

		if i == cfg.Budget {
			out.State = BudgetExhausted
			return out
		}

		cfg.Display.ShowIterationComplete(i)

		select {
		case <-ctx.Done():
			out.State = Interrupted
			out.Err = ctx.Err()
			return out
		case <-time.After(cfg.Delay):
		}
	}

	out.State = BudgetExhausted
	return out
}
