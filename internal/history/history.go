// Package history keeps a local SQLite ledger of campaign runs so past
// outcomes survive across invocations. Everything here is best-effort:
// a broken ledger must never fail a campaign.
package history

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	exit_state  TEXT
);
CREATE TABLE IF NOT EXISTS prd_results (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	path        TEXT NOT NULL,
	state       TEXT NOT NULL,
	iterations  INTEGER NOT NULL,
	tasks_done  INTEGER NOT NULL,
	tasks_total INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
`

// Store is one open ledger scoped to a single run.
type Store struct {
	db    *sql.DB
	runID string
	log   io.Writer
}

// Open creates (if needed) and opens the ledger under dir and starts a
// new run row. log receives warnings about recording failures.
func Open(dir string, log io.Writer) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "history.db"))
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	s := &Store{
		db:    db,
		runID: uuid.NewString(),
		log:   log,
	}

	_, err = db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		s.runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// RunID returns the identifier of the current run.
func (s *Store) RunID() string { return s.runID }

// RecordPRD stores one PRD outcome. Failures are logged, never returned.
func (s *Store) RecordPRD(path, state string, iterations, tasksDone, tasksTotal int) {
	_, err := s.db.Exec(
		`INSERT INTO prd_results (run_id, path, state, iterations, tasks_done, tasks_total, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, path, state, iterations, tasksDone, tasksTotal,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.warnf("history: failed to record %s: %v\n", path, err)
	}
}

// Finish stamps the run's final state and closes the ledger.
func (s *Store) Finish(exitState string) {
	_, err := s.db.Exec(`UPDATE runs SET finished_at = ?, exit_state = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), exitState, s.runID)
	if err != nil {
		s.warnf("history: failed to finish run: %v\n", err)
	}
	s.db.Close()
}

// PRDResult is one recorded outcome row.
type PRDResult struct {
	RunID      string
	Path       string
	State      string
	Iterations int
	TasksDone  int
	TasksTotal int
}

// Results returns the outcomes recorded for the current run, in order.
func (s *Store) Results() ([]PRDResult, error) {
	rows, err := s.db.Query(
		`SELECT run_id, path, state, iterations, tasks_done, tasks_total
		 FROM prd_results WHERE run_id = ? ORDER BY recorded_at`, s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PRDResult
	for rows.Next() {
		var r PRDResult
		if err := rows.Scan(&r.RunID, &r.Path, &r.State, &r.Iterations, &r.TasksDone, &r.TasksTotal); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) warnf(format string, args ...interface{}) {
	if s.log != nil {
		fmt.Fprintf(s.log, format, args...)
	}
}
