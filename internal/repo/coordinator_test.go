package repo

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

// recordingGit records every operation and answers from configured
// per-repo state.
type recordingGit struct {
	ops []string

	branches map[string][]string // repo -> branches that exist
	dirty    map[string]bool     // repo -> has uncommitted changes
	mergeErr map[string]error    // repo -> error from MergeNoFF
}

func newRecordingGit() *recordingGit {
	return &recordingGit{
		branches: map[string][]string{},
		dirty:    map[string]bool{},
		mergeErr: map[string]error{},
	}
}

func (g *recordingGit) record(format string, args ...interface{}) {
	g.ops = append(g.ops, fmt.Sprintf(format, args...))
}

func (g *recordingGit) BranchExists(repo, branch string) (bool, error) {
	for _, b := range g.branches[repo] {
		if b == branch {
			return true, nil
		}
	}
	return false, nil
}

func (g *recordingGit) Checkout(repo, branch string, create bool) error {
	g.record("checkout %s %s create=%v", repo, branch, create)
	if create {
		g.branches[repo] = append(g.branches[repo], branch)
	}
	return nil
}

func (g *recordingGit) HasChanges(repo string) (bool, error) {
	return g.dirty[repo], nil
}

func (g *recordingGit) CommitAll(repo, msg string) error {
	g.record("commit %s %q", repo, msg)
	g.dirty[repo] = false
	return nil
}

func (g *recordingGit) MergeNoFF(repo, branch, msg string) error {
	if err := g.mergeErr[repo]; err != nil {
		return err
	}
	g.record("merge %s %s", repo, branch)
	return nil
}

func (g *recordingGit) AbortMerge(repo string) error {
	g.record("abort %s", repo)
	return nil
}

func (g *recordingGit) DeleteBranch(repo, branch string) error {
	g.record("delete %s %s", repo, branch)
	g.branches[repo] = nil
	return nil
}

// opsMatching returns recorded ops whose first word is verb.
func (g *recordingGit) opsMatching(verb string) []string {
	var out []string
	for _, op := range g.ops {
		if strings.HasPrefix(op, verb+" ") {
			out = append(out, op)
		}
	}
	return out
}

func testSet(subs ...string) *Set {
	return &Set{Root: "/ws", Submodules: subs}
}

func TestMergeAll_SubmodulesBeforeRoot(t *testing.T) {
	// The root references submodule commits, so it must merge last
	// regardless of how the submodules are ordered.
	orders := [][]string{
		{"/ws/api", "/ws/web"},
		{"/ws/web", "/ws/api"},
	}

	for _, subs := range orders {
		g := newRecordingGit()
		for _, repo := range append(subs, "/ws") {
			g.branches[repo] = []string{"main", "feature/x"}
		}

		c := NewCoordinatorWithGit(g, io.Discard)
		if err := c.MergeAll(testSet(subs...), "feature/x", "main"); err != nil {
			t.Fatalf("MergeAll() error = %v", err)
		}

		merges := g.opsMatching("merge")
		want := []string{
			"merge " + subs[0] + " feature/x",
			"merge " + subs[1] + " feature/x",
			"merge /ws feature/x",
		}
		if len(merges) != len(want) {
			t.Fatalf("merges = %v, want %v", merges, want)
		}
		for i := range want {
			if merges[i] != want[i] {
				t.Errorf("merge order[%d] = %q, want %q", i, merges[i], want[i])
			}
		}
	}
}

func TestMergeAll_SkipsRepoWithoutFeatureBranch(t *testing.T) {
	g := newRecordingGit()
	g.branches["/ws"] = []string{"main", "feature/x"}
	g.branches["/ws/api"] = []string{"main"} // agent never touched this one

	var log strings.Builder
	c := NewCoordinatorWithGit(g, &log)
	if err := c.MergeAll(testSet("/ws/api"), "feature/x", "main"); err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}

	for _, op := range g.ops {
		if strings.Contains(op, "/ws/api") {
			t.Errorf("unexpected operation on skipped repo: %s", op)
		}
	}
	if !strings.Contains(log.String(), "skipping /ws/api") {
		t.Errorf("skip not logged: %q", log.String())
	}
}

func TestMergeAll_ConflictAbortsAndStops(t *testing.T) {
	g := newRecordingGit()
	for _, repo := range []string{"/ws", "/ws/api", "/ws/web"} {
		g.branches[repo] = []string{"main", "feature/x"}
	}
	conflict := errors.New("exit status 1: CONFLICT (content)")
	g.mergeErr["/ws/api"] = conflict

	c := NewCoordinatorWithGit(g, io.Discard)
	err := c.MergeAll(testSet("/ws/api", "/ws/web"), "feature/x", "main")

	var mce *MergeConflictError
	if !errors.As(err, &mce) {
		t.Fatalf("error = %v, want MergeConflictError", err)
	}
	if mce.Repo != "/ws/api" || mce.Feature != "feature/x" || mce.Integration != "main" {
		t.Errorf("MergeConflictError fields = %+v", mce)
	}
	if !errors.Is(err, conflict) {
		t.Error("cause not wrapped")
	}

	if got := g.opsMatching("abort"); len(got) != 1 || got[0] != "abort /ws/api" {
		t.Errorf("abort ops = %v, want exactly one on /ws/api", got)
	}
	// Later repos in the sequence must be untouched.
	for _, op := range g.ops {
		if strings.Contains(op, "/ws/web") {
			t.Errorf("operation on repo after conflict: %s", op)
		}
	}
	if !strings.Contains(mce.Instructions(), "feature/x") {
		t.Error("Instructions() missing feature branch")
	}
}

func TestMergeAll_NonConflictFailureIsNotAConflict(t *testing.T) {
	g := newRecordingGit()
	for _, repo := range []string{"/ws", "/ws/api"} {
		g.branches[repo] = []string{"main", "feature/x"}
	}
	cause := errors.New("exit status 1: untracked working tree files would be overwritten by merge")
	g.mergeErr["/ws/api"] = cause

	c := NewCoordinatorWithGit(g, io.Discard)
	err := c.MergeAll(testSet("/ws/api"), "feature/x", "main")
	if err == nil {
		t.Fatal("MergeAll() expected error")
	}

	var mce *MergeConflictError
	if errors.As(err, &mce) {
		t.Errorf("non-conflict failure reported as MergeConflictError: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not wrapped: %v", err)
	}
	// Still fatal: the root must not be merged after the failure.
	for _, op := range g.opsMatching("merge") {
		if strings.Contains(op, "/ws ") || strings.HasSuffix(op, "/ws feature/x") {
			t.Errorf("merge continued past the failed repo: %s", op)
		}
	}
}

func TestMergeAll_CommitsDirtyStateBeforeMerge(t *testing.T) {
	g := newRecordingGit()
	g.branches["/ws"] = []string{"main", "feature/x"}
	g.dirty["/ws"] = true

	c := NewCoordinatorWithGit(g, io.Discard)
	if err := c.MergeAll(testSet(), "feature/x", "main"); err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}

	var sawCommit bool
	for _, op := range g.ops {
		if strings.HasPrefix(op, "merge ") && !sawCommit {
			t.Fatal("merge ran before dirty-state commit")
		}
		if strings.HasPrefix(op, "commit /ws \"prdpilot: checkpoint") {
			sawCommit = true
		}
	}
	if !sawCommit {
		t.Error("dirty state never committed")
	}
}

func TestMergeAll_DeletesFeatureBranchAfterMerge(t *testing.T) {
	g := newRecordingGit()
	g.branches["/ws"] = []string{"main", "feature/x"}

	c := NewCoordinatorWithGit(g, io.Discard)
	if err := c.MergeAll(testSet(), "feature/x", "main"); err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}

	if got := g.opsMatching("delete"); len(got) != 1 || got[0] != "delete /ws feature/x" {
		t.Errorf("delete ops = %v", got)
	}
}

func TestMergeAll_CommitsResidualSubmodulePointers(t *testing.T) {
	g := newRecordingGit()
	g.branches["/ws"] = []string{"main"}
	g.branches["/ws/api"] = []string{"main", "feature/x"}

	// A submodule merge leaves the root pointing at new commits.
	submoduleMerged := false
	c := NewCoordinatorWithGit(&pointerDirtyGit{recordingGit: g, merged: &submoduleMerged}, io.Discard)
	if err := c.MergeAll(testSet("/ws/api"), "feature/x", "main"); err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}

	var found bool
	for _, op := range g.ops {
		if strings.HasPrefix(op, "commit /ws \"prdpilot: update submodule pointers") {
			found = true
		}
	}
	if !found {
		t.Errorf("residual pointer commit missing; ops = %v", g.ops)
	}
}

// pointerDirtyGit reports the root dirty once a submodule merge happened.
type pointerDirtyGit struct {
	*recordingGit
	merged *bool
}

func (g *pointerDirtyGit) MergeNoFF(repo, branch, msg string) error {
	if repo != "/ws" {
		*g.merged = true
	}
	return g.recordingGit.MergeNoFF(repo, branch, msg)
}

func (g *pointerDirtyGit) HasChanges(repo string) (bool, error) {
	if repo == "/ws" && *g.merged {
		return true, nil
	}
	return g.recordingGit.HasChanges(repo)
}

func TestEnsureBranches_CreatesMissing(t *testing.T) {
	g := newRecordingGit()
	g.branches["/ws"] = []string{"main", "feature/x"}
	g.branches["/ws/api"] = []string{"main"}

	c := NewCoordinatorWithGit(g, io.Discard)
	if err := c.EnsureBranches(testSet("/ws/api"), "feature/x"); err != nil {
		t.Fatalf("EnsureBranches() error = %v", err)
	}

	checkouts := g.opsMatching("checkout")
	want := []string{
		"checkout /ws/api feature/x create=true",
		"checkout /ws feature/x create=false",
	}
	if len(checkouts) != len(want) {
		t.Fatalf("checkouts = %v, want %v", checkouts, want)
	}
	for i := range want {
		if checkouts[i] != want[i] {
			t.Errorf("checkout[%d] = %q, want %q", i, checkouts[i], want[i])
		}
	}
}

func TestInOrder_RootLast(t *testing.T) {
	s := testSet("/ws/b", "/ws/a")
	got := s.InOrder()
	if got[len(got)-1] != "/ws" {
		t.Errorf("InOrder() last = %q, want root", got[len(got)-1])
	}
	if len(got) != 3 {
		t.Errorf("InOrder() len = %d, want 3", len(got))
	}
}
