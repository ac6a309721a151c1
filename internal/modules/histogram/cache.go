package histogram

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TTLChartPayload bounds how long a cached payload may be served before the
// refresh work regenerates it. Run records are immutable, so the TTL mostly
// sweeps rows whose run was deleted underneath the cache.
const TTLChartPayload = 24 * time.Hour

// cacheSchema is created by the repository itself: cache.db is disposable,
// so every boot must be able to rebuild it from nothing.
const cacheSchema = `
CREATE TABLE IF NOT EXISTS run_charts (
    run_id TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_charts_expires_at ON run_charts(expires_at);
`

// CacheRepository stores rendered chart payloads in cache.db with
// expiration timestamps.
type CacheRepository struct {
	db *sql.DB
}

// NewCacheRepository creates the repository and ensures its schema exists.
func NewCacheRepository(db *sql.DB) (*CacheRepository, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("failed to create run_charts schema: %w", err)
	}
	return &CacheRepository{db: db}, nil
}

// Store saves a payload with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert.
func (r *CacheRepository) Store(runID string, payload interface{}, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal chart payload: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO run_charts (run_id, data, expires_at) VALUES (?, ?, ?)",
		runID, string(data), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store chart payload: %w", err)
	}

	return nil
}

// GetIfFresh returns the payload only if expires_at is still in the future.
// Returns nil, nil when the run has no fresh cached payload.
func (r *CacheRepository) GetIfFresh(runID string) (json.RawMessage, error) {
	now := time.Now().Unix()

	var data string
	err := r.db.QueryRow(
		"SELECT data FROM run_charts WHERE run_id = ? AND expires_at > ?",
		runID, now,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chart payload: %w", err)
	}

	return json.RawMessage(data), nil
}

// FreshRunIDs returns the set of run IDs that currently hold unexpired
// payloads. The chart refresh work uses it to find runs needing a render.
func (r *CacheRepository) FreshRunIDs() (map[string]bool, error) {
	rows, err := r.db.Query(
		"SELECT run_id FROM run_charts WHERE expires_at > ?",
		time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list fresh chart payloads: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]bool)
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("failed to scan run ID: %w", err)
		}
		fresh[runID] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fresh chart payloads: %w", err)
	}

	return fresh, nil
}

// Delete removes the cached payload for a run.
func (r *CacheRepository) Delete(runID string) error {
	_, err := r.db.Exec("DELETE FROM run_charts WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete chart payload: %w", err)
	}
	return nil
}

// DeleteExpired removes all rows whose expiration has passed.
// Returns the number of rows deleted.
func (r *CacheRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec("DELETE FROM run_charts WHERE expires_at < ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired chart payloads: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
