package experiments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/qfitlab/qfit/internal/database"
	"github.com/rs/zerolog"
)

// archiveSchema lives in history.db. One row per (run, outcome) keeps the
// archive queryable with plain SQL long after the msgpack blobs in
// results.db have moved on.
const archiveSchema = `
CREATE TABLE IF NOT EXISTS outcome_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    bitstring TEXT NOT NULL,
    count INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcome_history_run ON outcome_history(run_id);
CREATE INDEX IF NOT EXISTS idx_outcome_history_recorded ON outcome_history(recorded_at);
`

// ArchiveRepository appends measurement outcomes to history.db.
type ArchiveRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewArchiveRepository creates a new outcome archive and ensures its schema
// exists.
func NewArchiveRepository(db *sql.DB, log zerolog.Logger) (*ArchiveRepository, error) {
	if _, err := db.Exec(archiveSchema); err != nil {
		return nil, fmt.Errorf("failed to create outcome_history schema: %w", err)
	}
	return &ArchiveRepository{
		db:  db,
		log: log.With().Str("repository", "archive").Logger(),
	}, nil
}

// ArchiveRun appends one row per outcome of a finished run.
func (r *ArchiveRepository) ArchiveRun(runID string, counts map[string]int) error {
	if runID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	recordedAt := time.Now().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for bitstring, count := range counts {
			_, err := tx.Exec(`
				INSERT INTO outcome_history (run_id, bitstring, count, recorded_at)
				VALUES (?, ?, ?, ?)
			`, runID, bitstring, count, recordedAt)
			if err != nil {
				return fmt.Errorf("failed to archive outcome %s: %w", bitstring, err)
			}
		}
		return nil
	})
}

// CountsForRun reads archived outcomes back as a counts map.
func (r *ArchiveRepository) CountsForRun(runID string) (map[string]int, error) {
	rows, err := r.db.Query(
		"SELECT bitstring, count FROM outcome_history WHERE run_id = ?",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var bitstring string
		var count int
		if err := rows.Scan(&bitstring, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		counts[bitstring] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return counts, nil
}

// PruneOlderThan deletes archive rows recorded more than retentionDays ago.
// Returns the number of rows deleted.
func (r *ArchiveRepository) PruneOlderThan(retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", retentionDays)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()

	result, err := r.db.Exec("DELETE FROM outcome_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune outcome history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		r.log.Info().
			Int64("deleted", deleted).
			Int("retention_days", retentionDays).
			Msg("Pruned outcome history")
	}

	return deleted, nil
}

// Rows returns the total number of archived outcome rows.
func (r *ArchiveRepository) Rows() (int64, error) {
	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM outcome_history").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count outcome history rows: %w", err)
	}
	return total, nil
}
