package campaign

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/forgeworks/prdpilot/internal/agent"
)

// completingEngine marks the whole task store complete on every
// invocation, whichever store the prompt names.
type completingEngine struct {
	stores map[string]string // path -> completed content
	calls  int
	output string
}

func (e *completingEngine) Name() string { return "completing" }

func (e *completingEngine) Execute(ctx context.Context, prompt string, d *agent.Display) agent.Result {
	e.calls++
	for path, done := range e.stores {
		if strings.Contains(prompt, path) {
			if err := os.WriteFile(path, []byte(done), 0644); err != nil {
				return agent.Result{Err: err}
			}
		}
	}
	return agent.Result{Success: true, Output: e.output}
}

// staticEngine returns the same result every time and never touches
// the store.
type staticEngine struct {
	output string
	err    error
	calls  int
}

func (e *staticEngine) Name() string { return "static" }

func (e *staticEngine) Execute(ctx context.Context, prompt string, d *agent.Display) agent.Result {
	e.calls++
	if e.err != nil {
		return agent.Result{Err: e.err}
	}
	return agent.Result{Success: true, Output: e.output}
}

type fakeCoordinator struct {
	ensured  []string
	merged   []string // "feature->integration"
	mergeErr error
}

func (c *fakeCoordinator) EnsureBranches(branch string) error {
	c.ensured = append(c.ensured, branch)
	return nil
}

func (c *fakeCoordinator) Merge(feature, integration string) error {
	if c.mergeErr != nil {
		return c.mergeErr
	}
	c.merged = append(c.merged, feature+"->"+integration)
	return nil
}

type fakeRecorder struct {
	records []string
}

func (r *fakeRecorder) RecordPRD(path, state string, iterations, tasksDone, tasksTotal int) {
	r.records = append(r.records, path+":"+state)
}

func newTestRunner(eng agent.Engine, coord *fakeCoordinator) *Runner {
	return &Runner{
		Engine:  eng,
		Display: agent.NewDisplay(io.Discard),
		Coord:   coord,
		Delay:   time.Millisecond,
	}
}

func completedVariant(store string) string {
	s := strings.ReplaceAll(store, `"priority": 1`, `"priority": 1, "passes": true, "typecheckPasses": true`)
	return strings.ReplaceAll(s, `"priority": 2`, `"priority": 2, "passes": true, "typecheckPasses": true`)
}

func TestRun_AllCompleteDoesNothing(t *testing.T) {
	dir := t.TempDir()
	path := writePRDFile(t, dir, "done.json", completeStore)

	plan, err := BuildPlan([]string{path}, Options{Yes: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	eng := &staticEngine{}
	coord := &fakeCoordinator{}
	progress, err := newTestRunner(eng, coord).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if eng.calls != 0 {
		t.Errorf("engine invoked %d times, want 0", eng.calls)
	}
	if len(coord.ensured) != 0 {
		t.Errorf("branches ensured for already-complete plan: %v", coord.ensured)
	}
	if progress.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0", progress.Iterations)
	}
}

func TestRun_ConfirmDeclinedAborts(t *testing.T) {
	dir := t.TempDir()
	path := writePRDFile(t, dir, "prd.json", pendingStore)

	plan, err := BuildPlan([]string{path}, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	eng := &staticEngine{}
	r := newTestRunner(eng, &fakeCoordinator{})
	r.Confirm = func() bool { return false }

	_, err = r.Run(context.Background(), plan)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("error = %v, want ErrAborted", err)
	}
	if eng.calls != 0 {
		t.Errorf("engine invoked %d times after decline, want 0", eng.calls)
	}
}

func TestRun_CompletesAndMergesBetweenPRDs(t *testing.T) {
	dir := t.TempDir()
	a := writePRDFile(t, dir, "phase-1.json", pendingStore)
	b := writePRDFile(t, dir, "phase-2.json",
		`{"branch": "feature/b", "userStories": [{"id": "T1", "title": "t", "priority": 1}]}`)

	plan, err := BuildPlan([]string{a, b}, Options{Yes: true, IntegrationBranch: "main"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.AutoMerge {
		t.Fatal("expected AutoMerge on for two pending PRDs")
	}

	eng := &completingEngine{stores: map[string]string{
		a: completedVariant(pendingStore),
		b: `{"branch": "feature/b", "userStories": [{"id": "T1", "title": "t", "priority": 1, "passes": true, "typecheckPasses": true}]}`,
	}}
	coord := &fakeCoordinator{}
	rec := &fakeRecorder{}
	r := newTestRunner(eng, coord)
	r.History = rec

	progress, err := r.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(progress.CompletedPRDs) != 2 || len(progress.RemainingPRDs) != 0 {
		t.Errorf("progress = %+v", progress)
	}
	if want := []string{"feature/a", "feature/b"}; len(coord.ensured) != 2 ||
		coord.ensured[0] != want[0] || coord.ensured[1] != want[1] {
		t.Errorf("ensured = %v, want %v", coord.ensured, want)
	}
	// Merge only between PRDs, not after the last one.
	if len(coord.merged) != 1 || coord.merged[0] != "feature/a->main" {
		t.Errorf("merged = %v, want [feature/a->main]", coord.merged)
	}
	if len(rec.records) != 2 || !strings.HasSuffix(rec.records[0], ":completed") {
		t.Errorf("records = %v", rec.records)
	}
}

func TestRun_MergeConflictStopsCampaign(t *testing.T) {
	dir := t.TempDir()
	a := writePRDFile(t, dir, "a.json", pendingStore)
	b := writePRDFile(t, dir, "b.json",
		`{"branch": "feature/b", "userStories": [{"id": "T1", "title": "t", "priority": 1}]}`)

	plan, err := BuildPlan([]string{a, b}, Options{Yes: true, IntegrationBranch: "main"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	eng := &completingEngine{stores: map[string]string{a: completedVariant(pendingStore)}}
	conflict := errors.New("CONFLICT in /ws/api")
	coord := &fakeCoordinator{mergeErr: conflict}

	progress, err := newTestRunner(eng, coord).Run(context.Background(), plan)
	if !errors.Is(err, conflict) {
		t.Fatalf("error = %v, want merge conflict", err)
	}
	if len(progress.CompletedPRDs) != 1 || progress.CompletedPRDs[0] != a {
		t.Errorf("CompletedPRDs = %v, want [%s]", progress.CompletedPRDs, a)
	}
	if len(progress.RemainingPRDs) != 1 || progress.RemainingPRDs[0] != b {
		t.Errorf("RemainingPRDs = %v, want [%s]", progress.RemainingPRDs, b)
	}
}

func TestRun_UsageLimitError(t *testing.T) {
	dir := t.TempDir()
	path := writePRDFile(t, dir, "prd.json", pendingStore)

	plan, err := BuildPlan([]string{path}, Options{Yes: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	eng := &staticEngine{output: "usage limit reached"}
	_, err = newTestRunner(eng, &fakeCoordinator{}).Run(context.Background(), plan)
	if !errors.Is(err, ErrUsageLimit) {
		t.Fatalf("error = %v, want ErrUsageLimit", err)
	}
	if eng.calls != 1 {
		t.Errorf("engine invoked %d times, want 1", eng.calls)
	}
}

func TestRun_BudgetExhaustedError(t *testing.T) {
	dir := t.TempDir()
	path := writePRDFile(t, dir, "prd.json", pendingStore)

	plan, err := BuildPlan([]string{path}, Options{Yes: true, BudgetOverride: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}

	eng := &staticEngine{output: "still going"}
	_, err = newTestRunner(eng, &fakeCoordinator{}).Run(context.Background(), plan)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("error = %v, want ErrBudgetExhausted", err)
	}
	if eng.calls != 2 {
		t.Errorf("engine invoked %d times, want 2", eng.calls)
	}
}

func TestRun_AgentFailureError(t *testing.T) {
	dir := t.TempDir()
	path := writePRDFile(t, dir, "prd.json", pendingStore)

	plan, err := BuildPlan([]string{path}, Options{Yes: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	eng := &staticEngine{err: errors.New("spawn failed")}
	_, err = newTestRunner(eng, &fakeCoordinator{}).Run(context.Background(), plan)
	if !errors.Is(err, ErrAgentFailure) {
		t.Fatalf("error = %v, want ErrAgentFailure", err)
	}
	if eng.calls != 1 {
		t.Errorf("engine invoked %d times, want exactly 1", eng.calls)
	}
}
