// Package datasets manages the sample point collections that experiments
// fit. Datasets live in config.db; points are stored in insertion order so
// a dataset reads back exactly as it was created.
package datasets

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qfitlab/qfit/internal/database"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/rs/zerolog"
)

const datasetsSchema = `
CREATE TABLE IF NOT EXISTS datasets (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_points (
    dataset_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    PRIMARY KEY (dataset_id, position)
);
`

// Repository handles dataset storage in config.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new dataset repository and ensures its schema
// exists.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	if _, err := db.Exec(datasetsSchema); err != nil {
		return nil, fmt.Errorf("failed to create datasets schema: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "datasets").Logger(),
	}, nil
}

// Create stores a dataset and its points in a single transaction.
// An empty ID is filled with a fresh UUID; a zero CreatedAt with now.
func (r *Repository) Create(ds *domain.Dataset) error {
	if ds.Name == "" {
		return fmt.Errorf("dataset name cannot be empty")
	}
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now()
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO datasets (id, name, description, created_at) VALUES (?, ?, ?, ?)",
			ds.ID, ds.Name, ds.Description, ds.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert dataset %s: %w", ds.Name, err)
		}

		for i, p := range ds.Points {
			_, err := tx.Exec(
				"INSERT INTO dataset_points (dataset_id, position, x, y) VALUES (?, ?, ?, ?)",
				ds.ID, i, p.X, p.Y,
			)
			if err != nil {
				return fmt.Errorf("failed to insert point %d: %w", i, err)
			}
		}

		return nil
	})
}

// GetByID returns a dataset with its points, or nil, nil when it does not
// exist.
func (r *Repository) GetByID(id string) (*domain.Dataset, error) {
	return r.getBy("id", id)
}

// GetByName returns a dataset by its unique name, or nil, nil when it does
// not exist.
func (r *Repository) GetByName(name string) (*domain.Dataset, error) {
	return r.getBy("name", name)
}

func (r *Repository) getBy(column, value string) (*domain.Dataset, error) {
	query := fmt.Sprintf(
		"SELECT id, name, description, created_at FROM datasets WHERE %s = ?",
		column,
	)

	var ds domain.Dataset
	var createdAt int64
	err := r.db.QueryRow(query, value).Scan(&ds.ID, &ds.Name, &ds.Description, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	ds.CreatedAt = time.Unix(createdAt, 0)

	points, err := r.loadPoints(ds.ID)
	if err != nil {
		return nil, err
	}
	ds.Points = points

	return &ds, nil
}

// List returns all datasets with their points, ordered by creation time.
func (r *Repository) List() ([]domain.Dataset, error) {
	rows, err := r.db.Query(
		"SELECT id, name, description, created_at FROM datasets ORDER BY created_at, name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []domain.Dataset
	for rows.Next() {
		var ds domain.Dataset
		var createdAt int64
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}
		ds.CreatedAt = time.Unix(createdAt, 0)
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}

	for i := range datasets {
		points, err := r.loadPoints(datasets[i].ID)
		if err != nil {
			return nil, err
		}
		datasets[i].Points = points
	}

	return datasets, nil
}

// Delete removes a dataset and its points. Experiments referencing the
// dataset are not touched; their next run fails with a recorded error.
func (r *Repository) Delete(id string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM dataset_points WHERE dataset_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete dataset points: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM datasets WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete dataset: %w", err)
		}
		return nil
	})
}

// Count returns the number of stored datasets.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM datasets").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count datasets: %w", err)
	}
	return count, nil
}

func (r *Repository) loadPoints(datasetID string) ([]domain.Point, error) {
	rows, err := r.db.Query(
		"SELECT x, y FROM dataset_points WHERE dataset_id = ? ORDER BY position",
		datasetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset points: %w", err)
	}
	defer rows.Close()

	var points []domain.Point
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("failed to scan point row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}

	return points, nil
}
