package repo

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Git is the narrow version-control surface the coordinator consumes.
// Everything is scoped per repository path so tests can substitute a
// recording fake.
type Git interface {
	BranchExists(repoPath, branch string) (bool, error)
	Checkout(repoPath, branch string, create bool) error
	HasChanges(repoPath string) (bool, error)
	CommitAll(repoPath, message string) error
	MergeNoFF(repoPath, branch, message string) error
	AbortMerge(repoPath string) error
	DeleteBranch(repoPath, branch string) error
}

// localGit implements Git with go-git for repository-state operations
// and the git CLI for merging, which go-git cannot do non-fast-forward.
type localGit struct{}

// NewGit returns the default Git implementation.
func NewGit() Git { return localGit{} }

func (localGit) BranchExists(repoPath, branch string) (bool, error) {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to open repository %s: %w", repoPath, err)
	}

	_, err = r.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err == plumbing.ErrReferenceNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (localGit) Checkout(repoPath, branch string, create bool) error {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", repoPath, err)
	}

	w, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
		Keep:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to checkout %s in %s: %w", branch, repoPath, err)
	}
	return nil
}

func (localGit) HasChanges(repoPath string) (bool, error) {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to open repository %s: %w", repoPath, err)
	}

	w, err := r.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}

	return !status.IsClean(), nil
}

func (localGit) CommitAll(repoPath, message string) error {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", repoPath, err)
	}

	w, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}

	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	_, err = w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "prdpilot",
			Email: "prdpilot@forgeworks.dev",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit in %s: %w", repoPath, err)
	}
	return nil
}

func (localGit) MergeNoFF(repoPath, branch, message string) error {
	out, err := exec.Command("git", "-C", repoPath, "merge", "--no-ff", "--no-edit", "-m", message, branch).CombinedOutput()
	if err != nil {
		return fmt.Errorf("merge of %s failed in %s: %w: %s", branch, repoPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (localGit) AbortMerge(repoPath string) error {
	out, err := exec.Command("git", "-C", repoPath, "merge", "--abort").CombinedOutput()
	if err != nil {
		return fmt.Errorf("merge abort failed in %s: %w: %s", repoPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (localGit) DeleteBranch(repoPath, branch string) error {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", repoPath, err)
	}

	err = r.Storer.RemoveReference(plumbing.NewBranchReferenceName(branch))
	if err != nil {
		return fmt.Errorf("failed to delete branch %s in %s: %w", branch, repoPath, err)
	}
	return nil
}
