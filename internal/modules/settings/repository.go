// Package settings stores runtime-tunable key-value configuration in
// config.db. Values here take precedence over environment variables, which
// lets defaults change without restarting the server.
package settings

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);
`

// Repository handles settings storage. Values are stored as strings and
// converted on read.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new settings repository and ensures its schema
// exists.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	if _, err := db.Exec(settingsSchema); err != nil {
		return nil, fmt.Errorf("failed to create settings schema: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "settings").Logger(),
	}, nil
}

// Get returns a setting value, or nil, nil when the key does not exist.
func (r *Repository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// GetInt returns a setting parsed as an integer, or nil, nil when the key
// does not exist. Unparsable values are treated as absent and logged, so a
// corrupted row cannot wedge startup.
func (r *Repository) GetInt(key string) (*int, error) {
	value, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	intVal, err := strconv.Atoi(*value)
	if err != nil {
		r.log.Warn().
			Str("key", key).
			Str("value", *value).
			Msg("Setting is not an integer, ignoring")
		return nil, nil
	}
	return &intVal, nil
}

// Set stores a setting value, inserting or updating as needed. A nil
// description leaves any existing description in place.
func (r *Repository) Set(key, value string, description *string) error {
	now := time.Now().Unix()

	if description != nil {
		_, err := r.db.Exec(`
			INSERT INTO settings (key, value, description, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				description = excluded.description,
				updated_at = excluded.updated_at
		`, key, value, *description, now)
		if err != nil {
			return fmt.Errorf("failed to set setting %s: %w", key, err)
		}
		return nil
	}

	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAll returns every stored setting as a key → value map.
func (r *Repository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return result, nil
}

// Delete removes a setting. Deleting an absent key is a no-op.
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// Seed installs default rows for keys that do not exist yet. Existing rows
// are never touched, so user edits survive restarts. The values come from
// the already-resolved configuration so environment overrides are honored
// on first boot.
func (r *Repository) Seed(defaults map[string]string) error {
	now := time.Now().Unix()

	seeded := 0
	for key, value := range defaults {
		description := ""
		if spec, ok := Specs[key]; ok {
			description = spec.Description
		}

		result, err := r.db.Exec(`
			INSERT INTO settings (key, value, description, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, value, description, now)
		if err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", key, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		seeded += int(affected)
	}

	if seeded > 0 {
		r.log.Info().Int("count", seeded).Msg("Seeded default settings")
	}
	return nil
}
