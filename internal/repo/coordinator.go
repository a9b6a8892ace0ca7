package repo

import (
	"fmt"
	"io"
	"strings"
)

// MergeConflictError indicates a merge hit conflicts in one repository.
// Conflicts are never auto-resolved; the workspace is left for manual
// resolution and the error carries the instructions.
type MergeConflictError struct {
	Repo        string
	Feature     string
	Integration string
	Cause       error
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict in %s merging %s into %s: %v", e.Repo, e.Feature, e.Integration, e.Cause)
}

func (e *MergeConflictError) Unwrap() error { return e.Cause }

// Instructions returns manual-resolution steps for the user.
func (e *MergeConflictError) Instructions() string {
	return fmt.Sprintf(`Resolve manually:
  cd %s
  git checkout %s
  git merge --no-ff %s   # resolve conflicts, then: git commit
Repositories earlier in the sequence are already merged; later ones are untouched.`,
		e.Repo, e.Integration, e.Feature)
}

// Coordinator keeps the repository set's branches consistent.
type Coordinator struct {
	git Git
	out io.Writer
}

// NewCoordinator creates a Coordinator using the local git implementation.
func NewCoordinator(out io.Writer) *Coordinator {
	return &Coordinator{git: NewGit(), out: out}
}

// NewCoordinatorWithGit creates a Coordinator with a custom Git, for tests.
func NewCoordinatorWithGit(g Git, out io.Writer) *Coordinator {
	return &Coordinator{git: g, out: out}
}

// EnsureBranches switches every repository in the set onto branch,
// creating it from the current HEAD where it does not exist yet. Each
// repository's checkout is independent, so per-repo order is irrelevant.
func (c *Coordinator) EnsureBranches(set *Set, branch string) error {
	for _, repoPath := range set.InOrder() {
		exists, err := c.git.BranchExists(repoPath, branch)
		if err != nil {
			return err
		}
		if err := c.git.Checkout(repoPath, branch, !exists); err != nil {
			return err
		}
	}
	return nil
}

// MergeAll merges feature into integration across the whole set:
// submodules first, root last. Per repository it commits any dirty state
// on the feature branch, switches to (or creates) the integration
// branch, and performs a non-fast-forward merge. A repository without
// the feature branch is logged and skipped. A conflict aborts the merge
// in that repository and fails the whole operation. After the root
// merge, residual submodule-pointer changes in the root are committed.
func (c *Coordinator) MergeAll(set *Set, feature, integration string) error {
	for _, repoPath := range set.InOrder() {
		if err := c.mergeOne(repoPath, feature, integration); err != nil {
			return err
		}
	}

	// Submodule merges move the commits the root's tree points at.
	dirty, err := c.git.HasChanges(set.Root)
	if err != nil {
		return err
	}
	if dirty {
		if err := c.git.CommitAll(set.Root, "prdpilot: update submodule pointers after merge"); err != nil {
			return err
		}
	}

	return nil
}

func (c *Coordinator) mergeOne(repoPath, feature, integration string) error {
	exists, err := c.git.BranchExists(repoPath, feature)
	if err != nil {
		return err
	}
	if !exists {
		c.logf("   skipping %s: no %s branch\n", repoPath, feature)
		return nil
	}

	if err := c.git.Checkout(repoPath, feature, false); err != nil {
		return err
	}

	dirty, err := c.git.HasChanges(repoPath)
	if err != nil {
		return err
	}
	if dirty {
		if err := c.git.CommitAll(repoPath, "prdpilot: checkpoint before merge"); err != nil {
			return err
		}
	}

	intExists, err := c.git.BranchExists(repoPath, integration)
	if err != nil {
		return err
	}
	if err := c.git.Checkout(repoPath, integration, !intExists); err != nil {
		return err
	}

	msg := fmt.Sprintf("Merge %s into %s", feature, integration)
	if err := c.git.MergeNoFF(repoPath, feature, msg); err != nil {
		// Leave the repository clean for manual resolution; best effort.
		_ = c.git.AbortMerge(repoPath)
		if isConflict(err) {
			return &MergeConflictError{
				Repo:        repoPath,
				Feature:     feature,
				Integration: integration,
				Cause:       err,
			}
		}
		return fmt.Errorf("merge of %s into %s failed in %s: %w", feature, integration, repoPath, err)
	}

	if err := c.git.DeleteBranch(repoPath, feature); err != nil {
		return err
	}

	c.logf("   merged %s into %s in %s\n", feature, integration, repoPath)
	return nil
}

// isConflict reports whether a merge failure is an actual content
// conflict, as opposed to some other git failure (untracked files in the
// way, unrelated histories) where conflict-resolution instructions would
// mislead.
func isConflict(err error) bool {
	s := err.Error()
	return strings.Contains(s, "CONFLICT") ||
		strings.Contains(s, "Automatic merge failed") ||
		strings.Contains(s, "fix conflicts")
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.out != nil {
		fmt.Fprintf(c.out, format, args...)
	}
}
