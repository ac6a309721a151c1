package scheduler

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// VacuumDatabasesJob compacts the databases that accumulate churn. The
// results database is skipped: run rows are append-only and its profile
// never reclaims pages.
type VacuumDatabasesJob struct {
	JobBase
	log       zerolog.Logger
	configDB  *sql.DB
	cacheDB   *sql.DB
	historyDB *sql.DB
}

// NewVacuumDatabasesJob creates a new VacuumDatabasesJob
func NewVacuumDatabasesJob(configDB, cacheDB, historyDB *sql.DB) *VacuumDatabasesJob {
	return &VacuumDatabasesJob{
		log:       zerolog.Nop(),
		configDB:  configDB,
		cacheDB:   cacheDB,
		historyDB: historyDB,
	}
}

// SetLogger sets the logger for the job
func (j *VacuumDatabasesJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *VacuumDatabasesJob) Name() string {
	return "vacuum_databases"
}

// Run vacuums each compactable database, continuing past failures.
func (j *VacuumDatabasesJob) Run() error {
	databases := []struct {
		name string
		conn *sql.DB
	}{
		{"config", j.configDB},
		{"cache", j.cacheDB},
		{"history", j.historyDB},
	}

	failures := 0
	for _, db := range databases {
		if db.conn == nil {
			continue
		}

		if err := j.vacuumDatabase(db.conn, db.name); err != nil {
			j.log.Error().
				Err(err).
				Str("database", db.name).
				Msg("VACUUM failed")
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("vacuum failed for %d database(s)", failures)
	}

	j.log.Info().Msg("Vacuum pass completed")
	return nil
}

// vacuumDatabase performs VACUUM on a database and logs the space reclaimed.
func (j *VacuumDatabasesJob) vacuumDatabase(conn *sql.DB, name string) error {
	var pageCount, pageSize int
	_ = conn.QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = conn.QueryRow("PRAGMA page_size").Scan(&pageSize)
	sizeBefore := float64(pageCount*pageSize) / 1024 / 1024

	if _, err := conn.Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	_ = conn.QueryRow("PRAGMA page_count").Scan(&pageCount)
	sizeAfter := float64(pageCount*pageSize) / 1024 / 1024

	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}
