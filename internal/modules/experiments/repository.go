// Package experiments turns stored datasets into quantum linear-solver runs:
// it owns the experiment lifecycle, executes the fit → circuit → sample →
// evaluate pipeline against a registered backend, and records immutable run
// rows.
package experiments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qfitlab/qfit/internal/database"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// experimentsSchema lives in results.db (ledger profile): run rows are the
// system of record and are never rewritten.
const experimentsSchema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    dataset_id TEXT NOT NULL,
    name TEXT NOT NULL,
    degree INTEGER NOT NULL,
    shots INTEGER NOT NULL,
    clock_qubits INTEGER NOT NULL,
    backend TEXT NOT NULL,
    status TEXT NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    job_id TEXT NOT NULL,
    backend TEXT NOT NULL,
    counts BLOB NOT NULL,
    probabilities BLOB,
    quantum_solution BLOB NOT NULL,
    classical_solution BLOB NOT NULL,
    evaluation BLOB,
    success_probability REAL NOT NULL,
    shots INTEGER NOT NULL,
    num_qubits INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id);
`

// Repository handles experiment and run storage in results.db.
// Counts, probabilities, solution vectors and evaluation reports are stored
// as msgpack blobs; run timestamps keep millisecond resolution because local
// runs finish well under a second.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new experiments repository and ensures its schema
// exists.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	if _, err := db.Exec(experimentsSchema); err != nil {
		return nil, fmt.Errorf("failed to create experiments schema: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "experiments").Logger(),
	}, nil
}

// CreateExperiment stores a new experiment. An empty ID is filled with a
// fresh UUID, zero timestamps with now, and an empty status with queued.
func (r *Repository) CreateExperiment(e *domain.Experiment) error {
	if e.Name == "" {
		return fmt.Errorf("experiment name cannot be empty")
	}
	if e.DatasetID == "" {
		return fmt.Errorf("experiment needs a dataset")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = domain.ExperimentQueued
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}

	_, err := r.db.Exec(`
		INSERT INTO experiments
			(id, dataset_id, name, degree, shots, clock_qubits, backend, status, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.DatasetID, e.Name, e.Degree, e.Shots, e.ClockQubits, e.Backend,
		string(e.Status), e.LastError, e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert experiment %s: %w", e.Name, err)
	}

	return nil
}

// GetExperiment returns an experiment by ID, or nil, nil when it does not
// exist.
func (r *Repository) GetExperiment(id string) (*domain.Experiment, error) {
	row := r.db.QueryRow(`
		SELECT id, dataset_id, name, degree, shots, clock_qubits, backend, status, last_error, created_at, updated_at
		FROM experiments WHERE id = ?
	`, id)

	e, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}

// ListExperiments returns all experiments, newest first.
func (r *Repository) ListExperiments() ([]domain.Experiment, error) {
	return r.listExperiments(`
		SELECT id, dataset_id, name, degree, shots, clock_qubits, backend, status, last_error, created_at, updated_at
		FROM experiments ORDER BY created_at DESC, id
	`)
}

// ExperimentsByStatus returns experiments in a given lifecycle state. The
// work processor uses it to find queued subjects.
func (r *Repository) ExperimentsByStatus(status domain.ExperimentStatus) ([]domain.Experiment, error) {
	return r.listExperiments(`
		SELECT id, dataset_id, name, degree, shots, clock_qubits, backend, status, last_error, created_at, updated_at
		FROM experiments WHERE status = ? ORDER BY created_at, id
	`, string(status))
}

func (r *Repository) listExperiments(query string, args ...interface{}) ([]domain.Experiment, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment row: %w", err)
		}
		experiments = append(experiments, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating experiments: %w", err)
	}

	return experiments, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExperiment(s scanner) (*domain.Experiment, error) {
	var e domain.Experiment
	var status string
	var createdAt, updatedAt int64

	err := s.Scan(&e.ID, &e.DatasetID, &e.Name, &e.Degree, &e.Shots, &e.ClockQubits,
		&e.Backend, &status, &e.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Status = domain.ExperimentStatus(status)
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

// MarkRunning flips an experiment to running, but only when no run is in
// flight. Returns false when the experiment is already running (or gone),
// which enforces the one-in-flight-run invariant at the database.
func (r *Repository) MarkRunning(id string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE experiments SET status = ?, last_error = '', updated_at = ?
		WHERE id = ? AND status != ?
	`, string(domain.ExperimentRunning), time.Now().Unix(), id, string(domain.ExperimentRunning))
	if err != nil {
		return false, fmt.Errorf("failed to mark experiment running: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted records a successful run.
func (r *Repository) MarkCompleted(id string) error {
	return r.setStatus(id, domain.ExperimentCompleted, "")
}

// MarkFailed records a failed run with its error.
func (r *Repository) MarkFailed(id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return r.setStatus(id, domain.ExperimentFailed, msg)
}

// Enqueue flips an experiment back to queued so the work processor picks it
// up. Returns false when a run is currently in flight.
func (r *Repository) Enqueue(id string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE experiments SET status = ?, last_error = '', updated_at = ?
		WHERE id = ? AND status != ?
	`, string(domain.ExperimentQueued), time.Now().Unix(), id, string(domain.ExperimentRunning))
	if err != nil {
		return false, fmt.Errorf("failed to enqueue experiment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) setStatus(id string, status domain.ExperimentStatus, lastError string) error {
	_, err := r.db.Exec(`
		UPDATE experiments SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, string(status), lastError, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}
	return nil
}

// DeleteExperiment removes an experiment and all of its runs.
func (r *Repository) DeleteExperiment(id string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM runs WHERE experiment_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete runs: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM experiments WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete experiment: %w", err)
		}
		return nil
	})
}

// SaveRun inserts a run row. Runs are immutable: there is deliberately no
// update path for a row once written (the lone exception is filling a
// missing evaluation, see SetRunEvaluation).
func (r *Repository) SaveRun(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.ExperimentID == "" {
		return fmt.Errorf("run needs an experiment")
	}

	counts, err := msgpack.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode counts: %w", err)
	}

	var probabilities []byte
	if run.Probabilities != nil {
		probabilities, err = msgpack.Marshal(run.Probabilities)
		if err != nil {
			return fmt.Errorf("failed to encode probabilities: %w", err)
		}
	}

	quantum, err := msgpack.Marshal(run.QuantumSolution)
	if err != nil {
		return fmt.Errorf("failed to encode quantum solution: %w", err)
	}

	classical, err := msgpack.Marshal(run.ClassicalSolution)
	if err != nil {
		return fmt.Errorf("failed to encode classical solution: %w", err)
	}

	var evaluation []byte
	if run.Evaluation != nil {
		evaluation, err = msgpack.Marshal(run.Evaluation)
		if err != nil {
			return fmt.Errorf("failed to encode evaluation: %w", err)
		}
	}

	_, err = r.db.Exec(`
		INSERT INTO runs
			(id, experiment_id, job_id, backend, counts, probabilities, quantum_solution,
			 classical_solution, evaluation, success_probability, shots, num_qubits,
			 started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.ExperimentID, run.JobID, run.Backend, counts, probabilities, quantum,
		classical, evaluation, run.SuccessProbability, run.Shots, run.NumQubits,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// GetRun returns a run by ID, or nil, nil when it does not exist.
func (r *Repository) GetRun(id string) (*domain.Run, error) {
	row := r.db.QueryRow(`
		SELECT id, experiment_id, job_id, backend, counts, probabilities, quantum_solution,
		       classical_solution, evaluation, success_probability, shots, num_qubits,
		       started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs of an experiment, newest first.
func (r *Repository) ListRuns(experimentID string) ([]domain.Run, error) {
	rows, err := r.db.Query(`
		SELECT id, experiment_id, job_id, backend, counts, probabilities, quantum_solution,
		       classical_solution, evaluation, success_probability, shots, num_qubits,
		       started_at, finished_at
		FROM runs WHERE experiment_id = ? ORDER BY started_at DESC, id
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// RunIDsWithoutEvaluation returns runs missing an evaluation report, e.g.
// recorded from a remote backend before evaluation support, oldest first.
func (r *Repository) RunIDsWithoutEvaluation() ([]string, error) {
	return r.runIDs("SELECT id FROM runs WHERE evaluation IS NULL ORDER BY started_at, id")
}

// RunIDs returns every stored run ID, newest first. The chart refresh work
// diffs it against the cache's fresh set.
func (r *Repository) RunIDs() ([]string, error) {
	return r.runIDs("SELECT id FROM runs ORDER BY started_at DESC, id")
}

func (r *Repository) runIDs(query string) ([]string, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list run IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run IDs: %w", err)
	}

	return ids, nil
}

// SetRunEvaluation fills a missing evaluation report. Rows that already
// carry a report are left untouched: run records stay immutable.
func (r *Repository) SetRunEvaluation(runID string, report *domain.EvaluationReport) error {
	data, err := msgpack.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}

	_, err = r.db.Exec(
		"UPDATE runs SET evaluation = ? WHERE id = ? AND evaluation IS NULL",
		data, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to set run evaluation: %w", err)
	}
	return nil
}

func scanRun(s scanner) (*domain.Run, error) {
	var run domain.Run
	var counts, quantum, classical []byte
	var probabilities, evaluation []byte
	var startedAt, finishedAt int64

	err := s.Scan(&run.ID, &run.ExperimentID, &run.JobID, &run.Backend, &counts,
		&probabilities, &quantum, &classical, &evaluation, &run.SuccessProbability,
		&run.Shots, &run.NumQubits, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := msgpack.Unmarshal(counts, &run.Counts); err != nil {
		return nil, fmt.Errorf("failed to decode counts: %w", err)
	}
	if len(probabilities) > 0 {
		if err := msgpack.Unmarshal(probabilities, &run.Probabilities); err != nil {
			return nil, fmt.Errorf("failed to decode probabilities: %w", err)
		}
	}
	if err := msgpack.Unmarshal(quantum, &run.QuantumSolution); err != nil {
		return nil, fmt.Errorf("failed to decode quantum solution: %w", err)
	}
	if err := msgpack.Unmarshal(classical, &run.ClassicalSolution); err != nil {
		return nil, fmt.Errorf("failed to decode classical solution: %w", err)
	}
	if len(evaluation) > 0 {
		if err := msgpack.Unmarshal(evaluation, &run.Evaluation); err != nil {
			return nil, fmt.Errorf("failed to decode evaluation: %w", err)
		}
	}

	run.StartedAt = time.UnixMilli(startedAt)
	run.FinishedAt = time.UnixMilli(finishedAt)
	return &run, nil
}
