// Package repo coordinates branches across a root repository and its
// submodules. The orchestrator's own submodule is excluded from every
// operation so the automation tooling is never switched out from under
// itself mid-run.
package repo

import (
	"fmt"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
)

// Set is the root repository plus its submodule paths, minus the
// orchestrator's own submodule.
type Set struct {
	Root       string   // Absolute path to the root repository
	Submodules []string // Absolute paths to submodule worktrees, in .gitmodules order
}

// InOrder returns every repository path in merge order: submodules
// first, root last. The root's worktree references submodule commits,
// so it must be merged after the submodules it points at.
func (s *Set) InOrder() []string {
	out := make([]string, 0, len(s.Submodules)+1)
	out = append(out, s.Submodules...)
	out = append(out, s.Root)
	return out
}

// Discover enumerates the repository set under root. selfPath is the
// orchestrator's own submodule, relative to root; it is dropped from the
// result. An empty selfPath disables self-exclusion.
func Discover(root, selfPath string) (*Set, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	r, err := git.PlainOpen(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open root repository %s: %w", absRoot, err)
	}

	w, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get root worktree: %w", err)
	}

	subs, err := w.Submodules()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate submodules: %w", err)
	}

	set := &Set{Root: absRoot}
	for _, sub := range subs {
		rel := filepath.Clean(sub.Config().Path)
		if selfPath != "" && rel == filepath.Clean(selfPath) {
			continue
		}
		set.Submodules = append(set.Submodules, filepath.Join(absRoot, rel))
	}

	return set, nil
}
