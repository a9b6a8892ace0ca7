package prompt

import (
	"fmt"
	"strings"
)

// Params holds the inputs for the per-iteration instruction payload.
type Params struct {
	TaskStorePath       string   // Path to the PRD JSON file
	ProgressLogPath     string   // Append-only human-readable log
	GeneralInstructions []string // PRD-level instructions passed through verbatim
}

// Build constructs the fixed instruction payload given to the agent on
// every iteration. The payload tells the agent how to pick a task, where
// to work, what verification is required, and which completion marker to
// emit. The orchestrator itself never mutates the task store during a
// run; the agent does, and the orchestrator re-reads it afterwards.
func Build(p Params) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `## Task Store

Read %s. It contains a "userStories" list of tasks.

## Pick ONE task

1. Skip tasks where both "passes" and "typecheckPasses" are true.
2. Skip tasks whose "dependencies" include any task id that is not yet
   complete (or that does not exist).
3. Of the remaining tasks, pick the one with the LOWEST "priority" value.
   Break ties by list order.

Work on exactly that one task this turn.

## Workspace navigation

This workspace is a root git repository with submodules. Change code in
whichever subproject the task belongs to; stay out of the automation
tooling's own submodule. Run the subproject's usual test and typecheck
commands from inside that subproject.

## Verification and bookkeeping

1. Implement the task and make its acceptance criteria true.
2. Run the tests; only when they pass set "passes": true in %s.
3. Run the typechecker/build; only when it passes set "typecheckPasses": true.
4. Append a short start/finish note for the task to %s.
5. Commit your changes in each repository you touched, with a descriptive
   message.
6. Have a code-review subagent look over the diff before you finish.

## Completion

After updating the task store, if EVERY task now has both flags true,
emit exactly this marker on its own line:

<promise>COMPLETE</promise>

Do not emit the marker otherwise.`,
		p.TaskStorePath, p.TaskStorePath, p.ProgressLogPath)

	if len(p.GeneralInstructions) > 0 {
		sb.WriteString("\n\n## Project instructions\n")
		for _, inst := range p.GeneralInstructions {
			fmt.Fprintf(&sb, "\n- %s", inst)
		}
	}

	return sb.String()
}
