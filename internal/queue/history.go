package queue

import (
	"database/sql"
	"fmt"
	"time"
)

// historySchema lives in cache.db: job run records are operational telemetry,
// rebuilt from nothing on every boot if the file is lost.
const historySchema = `
CREATE TABLE IF NOT EXISTS job_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    duration_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_job_history_type_started ON job_history(job_type, started_at);
`

// HistoryEntry is one recorded job attempt. Retried jobs produce one entry
// per attempt.
type HistoryEntry struct {
	ID         int64      `json:"id"`
	JobID      string     `json:"job_id"`
	Type       JobType    `json:"job_type"`
	Status     string     `json:"status"` // "running", "completed", "failed"
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// History persists job attempts so the dashboard can show recent activity
// and the manager can rate-limit interval jobs across restarts.
type History struct {
	db *sql.DB
}

// NewHistory creates the history store and ensures its schema exists.
func NewHistory(db *sql.DB) (*History, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("failed to create job_history schema: %w", err)
	}
	return &History{db: db}, nil
}

// RecordStart inserts a running entry for the job attempt.
func (h *History) RecordStart(job *Job) error {
	_, err := h.db.Exec(
		"INSERT INTO job_history (job_id, job_type, status, started_at) VALUES (?, ?, 'running', ?)",
		job.ID, string(job.Type), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record job start: %w", err)
	}
	return nil
}

// RecordResult finalizes the running entry for the job attempt.
func (h *History) RecordResult(job *Job, runErr error, duration time.Duration) error {
	status := "completed"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}

	_, err := h.db.Exec(
		`UPDATE job_history SET status = ?, error = ?, finished_at = ?, duration_ms = ?
		 WHERE id = (SELECT MAX(id) FROM job_history WHERE job_id = ? AND status = 'running')`,
		status, errMsg, time.Now().UnixMilli(), duration.Milliseconds(), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record job result: %w", err)
	}
	return nil
}

// LastRun returns when a job of this type last started, or nil if it never ran.
func (h *History) LastRun(jobType JobType) (*time.Time, error) {
	var startedMilli sql.NullInt64
	err := h.db.QueryRow(
		"SELECT MAX(started_at) FROM job_history WHERE job_type = ?",
		string(jobType),
	).Scan(&startedMilli)
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}
	if !startedMilli.Valid {
		return nil, nil
	}

	t := time.UnixMilli(startedMilli.Int64)
	return &t, nil
}

// Recent returns the most recent job attempts, newest first.
func (h *History) Recent(limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(
		`SELECT id, job_id, job_type, status, error, started_at, finished_at, duration_ms
		 FROM job_history ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var jobType string
		var startedMilli int64
		var finishedMilli, durationMS sql.NullInt64

		if err := rows.Scan(&e.ID, &e.JobID, &jobType, &e.Status, &e.Error, &startedMilli, &finishedMilli, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan job history entry: %w", err)
		}

		e.Type = JobType(jobType)
		e.StartedAt = time.UnixMilli(startedMilli)
		if finishedMilli.Valid {
			t := time.UnixMilli(finishedMilli.Int64)
			e.FinishedAt = &t
		}
		if durationMS.Valid {
			e.DurationMS = durationMS.Int64
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job history: %w", err)
	}

	return entries, nil
}

// Prune deletes all but the newest keep entries. Runs under cache_cleanup so
// the history table cannot grow without bound.
func (h *History) Prune(keep int) (int64, error) {
	result, err := h.db.Exec(
		`DELETE FROM job_history WHERE id NOT IN
		 (SELECT id FROM job_history ORDER BY started_at DESC, id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune job history: %w", err)
	}
	return result.RowsAffected()
}
