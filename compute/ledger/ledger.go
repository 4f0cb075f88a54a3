// Copyright © 2022 FORTH-ICS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledger keeps a record of the jobs submitted by batches in a SQLite database, so that
// the states of a batch can be inspected after the submitting process exits.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_jobs (
  batch        TEXT NOT NULL,
  name         TEXT NOT NULL,
  job_id       TEXT NOT NULL,
  dir          TEXT,
  state        TEXT,
  submitted_at TEXT,
  updated_at   TEXT,
  PRIMARY KEY (batch, name)
);`

// Entry is a submitted job as recorded in the ledger.
type Entry struct {
	Batch       string
	Name        string
	JobID       string
	Dir         string
	State       string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Ledger is a SQLite backed batch.Recorder.
type Ledger struct {
	db *sql.DB

	// now is replaced in tests.
	now func() time.Time
}

// DefaultPath returns $PBSKIT_LEDGER, or ledger.db in the directory of the configuration file.
func DefaultPath(configFile string) string {
	if path := os.Getenv(compute.EnvLedger); path != "" {
		return path
	}

	return filepath.Join(filepath.Dir(configFile), "ledger.db")
}

// Open opens the ledger at path, creating the file and the schema if needed.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), compute.JobDirectoryPermissions); err != nil {
		return nil, errors.Wrapf(err, "cannot create the directory of ledger '%s'", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open ledger '%s'", path)
	}

	// one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, errors.Wrapf(err, "cannot initialize ledger '%s'", path)
	}

	if err := os.Chmod(path, compute.LedgerFilePermissions); err != nil {
		db.Close()

		return nil, errors.Wrapf(err, "cannot set permissions of ledger '%s'", path)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Submitted records a new submission. Resubmitting a job of the batch replaces its previous record.
func (l *Ledger) Submitted(ctx context.Context, batch, jobName, jobID, dir string) error {
	ts := l.now().UTC().Format(time.RFC3339)

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batch_jobs (batch, name, job_id, dir, state, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)`,
		batch, jobName, jobID, dir, ts, ts)

	return errors.Wrapf(err, "cannot record job '%s'", jobID)
}

// Observed updates the last known state of a job. Unknown jobs are ignored.
func (l *Ledger) Observed(ctx context.Context, batch, jobID, state string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE batch_jobs SET state = ?, updated_at = ? WHERE batch = ? AND job_id = ?`,
		state, l.now().UTC().Format(time.RFC3339), batch, jobID)

	return errors.Wrapf(err, "cannot update job '%s'", jobID)
}

// Jobs returns the jobs of a batch in submission order.
func (l *Ledger) Jobs(ctx context.Context, batch string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT batch, name, job_id, dir, state, submitted_at, updated_at
		 FROM batch_jobs WHERE batch = ? ORDER BY rowid`, batch)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list jobs of batch '%s'", batch)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e                  Entry
			dir, state         sql.NullString
			submitted, updated sql.NullString
		)

		if err := rows.Scan(&e.Batch, &e.Name, &e.JobID, &dir, &state, &submitted, &updated); err != nil {
			return nil, errors.Wrapf(err, "cannot read jobs of batch '%s'", batch)
		}

		e.Dir = dir.String
		e.State = state.String
		e.SubmittedAt = parseTime(submitted)
		e.UpdatedAt = parseTime(updated)

		entries = append(entries, e)
	}

	return entries, errors.Wrapf(rows.Err(), "cannot read jobs of batch '%s'", batch)
}

// Batches returns the names of the recorded batches, most recent first.
func (l *Ledger) Batches(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT batch FROM batch_jobs GROUP BY batch ORDER BY MAX(submitted_at) DESC, batch`)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list batches")
	}
	defer rows.Close()

	var batches []string

	for rows.Next() {
		var name string

		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "cannot read batches")
		}

		batches = append(batches, name)
	}

	return batches, errors.Wrap(rows.Err(), "cannot read batches")
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}

	return t
}
