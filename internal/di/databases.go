// Package di provides dependency injection for database connections.
package di

import (
	"database/sql"
	"fmt"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/database"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3" // history.db driver
)

// InitializeDatabases opens all 4 databases. Schemas are applied by the
// repository constructors, so the databases start as empty files.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. config.db - settings, datasets, dataset points
	configDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/config.db",
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config database: %w", err)
	}
	container.ConfigDB = configDB

	// 2. results.db - experiments and immutable run records
	resultsDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/results.db",
		Profile: database.ProfileLedger, // Maximum safety: run rows are never rewritten
		Name:    "results",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize results database: %w", err)
	}
	container.ResultsDB = resultsDB

	// 3. cache.db - rendered chart payloads
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache, // Maximum speed for ephemeral data
		Name:    "cache",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// 4. history.db - append-only shot archive plus job history.
	// Opened on the mattn driver so archive bulk inserts do not compete
	// with the modernc pools of the core databases.
	historyDB, err := openHistoryDB(cfg.DataDir + "/history.db")
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	log.Info().Str("data_dir", cfg.DataDir).Msg("All databases initialized")

	return container, nil
}

// openHistoryDB opens the shot archive with WAL and a relaxed sync level;
// archive rows are reconstructible from results.db, so losing the last
// transaction on power failure is acceptable.
func openHistoryDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(4)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
