// Package testing provides shared test helpers: throwaway databases,
// domain fixtures and mock implementations of the service seams.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/qfitlab/qfit/internal/database"
	_ "github.com/mattn/go-sqlite3"
)

// NewTestDB creates a SQLite database on a temporary file with the profile
// the application would use for that database name. Repositories apply
// their own schema, so the database starts empty. The returned cleanup
// function closes the connection and removes the file; it is safe to call
// more than once.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: profileFor(name),
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
}

// profileFor mirrors the profile assignment the DI container uses.
func profileFor(name string) database.DatabaseProfile {
	switch name {
	case "results":
		return database.ProfileLedger
	case "cache":
		return database.ProfileCache
	default:
		return database.ProfileStandard
	}
}

// NewTestDBWithSchema creates a temporary database and executes the given
// schema SQL on it before returning.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	db, cleanup := NewTestDB(t, name)
	if _, err := db.Exec(schema); err != nil {
		cleanup()
		t.Fatalf("Failed to apply schema to test database %s: %v", name, err)
	}
	return db, cleanup
}

// NewMemoryConn opens an in-memory SQLite connection for tests that work
// against a bare *sql.DB (the job history, for example). The connection is
// closed automatically when the test finishes.
func NewMemoryConn(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
