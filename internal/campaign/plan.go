// Package campaign sequences multiple PRDs through the iteration loop,
// with upfront validation, an immutable plan, and explicit progress.
package campaign

import (
	"errors"
	"fmt"

	"github.com/forgeworks/prdpilot/internal/loop"
	"github.com/forgeworks/prdpilot/internal/prd"
)

// Options is the CLI-level input for a campaign.
type Options struct {
	BudgetOverride    int    // Per-PRD iteration budget; 0 = task_count * 3
	AutoMerge         *bool  // nil = default (on when >1 pending PRD)
	Yes               bool   // Skip the confirmation prompt
	EngineName        string // Agent engine to use
	ProgressLog       string // Shared append-only progress log path
	IntegrationBranch string // Branch completed feature branches merge into
	SelfPath          string // Orchestrator's own submodule, excluded from git ops
}

// PlannedPRD is one PRD with its computed budget and load-time counts.
type PlannedPRD struct {
	Path       string
	PRD        *prd.PRD
	Budget     int
	TasksDone  int
	TasksTotal int
}

// Plan is the immutable execution plan computed once per run. The task
// stores themselves keep changing underneath it; the plan only fixes
// ordering, budgets, and policy.
type Plan struct {
	Pending           []PlannedPRD
	Complete          []PlannedPRD
	AutoMerge         bool
	Yes               bool
	IntegrationBranch string
	ProgressLog       string
	Warnings          []string
}

// RepairFunc attempts to fix a malformed task-store file in place.
type RepairFunc func(path string) error

// BuildPlan validates every PRD upfront and computes the plan. Any
// missing file, unparseable store (after one bounded repair attempt),
// empty branch field, or dependency cycle aborts before any work starts.
func BuildPlan(paths []string, opts Options, repair RepairFunc) (*Plan, error) {
	if len(paths) == 0 {
		return nil, errors.New("no task stores given")
	}

	plan := &Plan{
		Yes:               opts.Yes,
		IntegrationBranch: opts.IntegrationBranch,
		ProgressLog:       opts.ProgressLog,
	}

	for _, path := range paths {
		p, err := loadWithRepair(path, repair)
		if err != nil {
			return nil, err
		}

		if p.Branch == "" {
			return nil, fmt.Errorf("%s: missing required branch field", path)
		}

		if err := prd.CheckCycles(p); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		for _, id := range unknownDependencies(p) {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("%s: task %s has an unknown dependency; it will never be selected", path, id))
		}

		done, total := p.Counts()
		planned := PlannedPRD{
			Path:       path,
			PRD:        p,
			Budget:     loop.Budget(total, opts.BudgetOverride),
			TasksDone:  done,
			TasksTotal: total,
		}

		if total == 0 {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("%s: has no tasks, treating as complete", path))
		}

		if p.IsComplete() {
			plan.Complete = append(plan.Complete, planned)
		} else {
			plan.Pending = append(plan.Pending, planned)
		}
	}

	if opts.AutoMerge != nil {
		plan.AutoMerge = *opts.AutoMerge
	} else {
		plan.AutoMerge = len(plan.Pending) > 1
	}

	return plan, nil
}

// loadWithRepair loads a task store, making one bounded repair attempt
// when the file exists but does not parse. Missing files are never
// repaired; they are an immediate validation error.
func loadWithRepair(path string, repair RepairFunc) (*prd.PRD, error) {
	p, err := prd.Load(path)
	if err == nil {
		return p, nil
	}

	var formatErr *prd.FormatError
	if !errors.As(err, &formatErr) || repair == nil {
		return nil, err
	}

	if repairErr := repair(path); repairErr != nil {
		return nil, repairErr
	}

	p, err = prd.Load(path)
	if err != nil {
		return nil, fmt.Errorf("task store still malformed after repair: %w", err)
	}
	return p, nil
}

// unknownDependencies returns ids of tasks with dangling dependency
// references, in PRD order.
func unknownDependencies(p *prd.PRD) []string {
	var ids []string
	for i := range p.UserStories {
		t := &p.UserStories[i]
		for _, dep := range t.Dependencies {
			if p.Task(dep) == nil {
				ids = append(ids, t.ID)
				break
			}
		}
	}
	return ids
}
