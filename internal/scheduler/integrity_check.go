package scheduler

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"
)

// IntegrityCheckJob runs SQLite's integrity check on every database and
// reports the outcome on the event bus so the dashboard and the queue
// listeners see unhealthy databases as they are found.
type IntegrityCheckJob struct {
	JobBase
	log       zerolog.Logger
	bus       *events.Bus
	configDB  *sql.DB
	resultsDB *sql.DB
	cacheDB   *sql.DB
	historyDB *sql.DB
}

// NewIntegrityCheckJob creates a new IntegrityCheckJob
func NewIntegrityCheckJob(configDB, resultsDB, cacheDB, historyDB *sql.DB, bus *events.Bus) *IntegrityCheckJob {
	return &IntegrityCheckJob{
		log:       zerolog.Nop(),
		bus:       bus,
		configDB:  configDB,
		resultsDB: resultsDB,
		cacheDB:   cacheDB,
		historyDB: historyDB,
	}
}

// SetLogger sets the logger for the job
func (j *IntegrityCheckJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *IntegrityCheckJob) Name() string {
	return "integrity_check"
}

// Run checks every database; all are checked even when one fails so a
// single corrupt file does not hide the state of the rest.
func (j *IntegrityCheckJob) Run() error {
	databases := []struct {
		name string
		conn *sql.DB
	}{
		{"config", j.configDB},
		{"results", j.resultsDB},
		{"cache", j.cacheDB},
		{"history", j.historyDB},
	}

	var failed []string
	for _, db := range databases {
		if db.conn == nil {
			j.log.Warn().Str("database", db.name).Msg("Database not initialized, skipping")
			continue
		}

		err := checkIntegrity(db.conn)
		j.emitHealth(db.name, err)

		if err != nil {
			// Corruption cannot be auto-recovered; restore from backup.
			j.log.Error().
				Err(err).
				Str("database", db.name).
				Msg("Database integrity check failed")
			failed = append(failed, db.name)
			continue
		}

		j.log.Debug().Str("database", db.name).Msg("Database integrity OK")
	}

	if len(failed) > 0 {
		return fmt.Errorf("integrity check failed for: %s", strings.Join(failed, ", "))
	}

	j.log.Info().Msg("All databases passed integrity check")
	return nil
}

// checkIntegrity runs SQLite's PRAGMA integrity_check
func checkIntegrity(conn *sql.DB) error {
	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

func (j *IntegrityCheckJob) emitHealth(name string, checkErr error) {
	if j.bus == nil {
		return
	}

	data := &events.DatabaseHealthData{
		Database: name,
		Healthy:  checkErr == nil,
	}
	if checkErr != nil {
		data.Error = checkErr.Error()
	}
	j.bus.EmitData("scheduler", data)
}
