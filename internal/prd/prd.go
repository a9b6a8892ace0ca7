package prd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Task is a single unit of work inside a PRD. A task counts as completed
// only when both its functional check and its typecheck have passed.
type Task struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Priority           int      `json:"priority"`
	Complexity         string   `json:"complexity,omitempty"`
	Category           string   `json:"category,omitempty"`
	Dependencies       []string `json:"dependencies,omitempty"`
	Passes             bool     `json:"passes"`
	TypecheckPasses    bool     `json:"typecheckPasses"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	TechnicalNotes     string   `json:"technicalNotes,omitempty"`
}

// Completed reports whether both completion flags are set.
func (t *Task) Completed() bool {
	return t.Passes && t.TypecheckPasses
}

// PRD represents the structure of a task-store JSON file.
type PRD struct {
	Project             string   `json:"project"`
	Phase               int      `json:"phase"`
	Branch              string   `json:"branch"`
	Description         string   `json:"description"`
	TotalTasks          int      `json:"total_tasks"`
	GeneralInstructions []string `json:"generalInstructions,omitempty"`
	UserStories         []Task   `json:"userStories"`

	// Path is the file the PRD was loaded from. Not serialized.
	Path string `json:"-"`
}

// FormatError indicates the task-store file exists but does not parse.
// Callers can detect it with errors.As and attempt a repair instead of
// aborting the whole campaign.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed task store %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// phasePattern matches a phase number embedded in a filename,
// e.g. "phase-3-auth.json" or "prd_phase2.json".
var phasePattern = regexp.MustCompile(`(?i)phase[-_]?(\d+)`)

// Load reads and parses a task-store file. A file that exists but does
// not parse yields a *FormatError; a missing file is a plain error.
func Load(path string) (*PRD, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p PRD
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	p.Path = path
	if p.Phase == 0 {
		if m := phasePattern.FindStringSubmatch(filepath.Base(path)); m != nil {
			p.Phase, _ = strconv.Atoi(m[1])
		}
	}

	return &p, nil
}

// Save writes the PRD to path atomically: the content goes to a temp file
// in the same directory which is then renamed over the target. The agent
// process reads this file concurrently, so a half-written store must
// never be observable.
func Save(p *PRD, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// Counts returns (completed, total) task counts.
func (p *PRD) Counts() (int, int) {
	done := 0
	for i := range p.UserStories {
		if p.UserStories[i].Completed() {
			done++
		}
	}
	return done, len(p.UserStories)
}

// IsComplete reports whether every task in the PRD is completed. A PRD
// with zero tasks is vacuously complete; callers that care should warn.
func (p *PRD) IsComplete() bool {
	done, total := p.Counts()
	return done == total
}

// Task returns the task with the given id, or nil.
func (p *PRD) Task(id string) *Task {
	for i := range p.UserStories {
		if p.UserStories[i].ID == id {
			return &p.UserStories[i]
		}
	}
	return nil
}

// Name returns a short human label for the PRD.
func (p *PRD) Name() string {
	if p.Project != "" {
		return p.Project
	}
	return filepath.Base(p.Path)
}
