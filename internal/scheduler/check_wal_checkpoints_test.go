package scheduler

import (
	"testing"

	qfittesting "github.com/qfitlab/qfit/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := &CheckWALCheckpointsJob{
		log: zerolog.Nop(),
	}
	assert.Equal(t, "wal_checkpoint", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckWALCheckpointsJob(nil, nil, nil, nil)
	job.SetLogger(zerolog.Nop())

	err := job.Run()
	assert.NoError(t, err) // Should handle nil databases gracefully
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	configDB, cleanupConfig := qfittesting.NewTestDB(t, "config")
	defer cleanupConfig()
	cacheDB, cleanupCache := qfittesting.NewTestDB(t, "cache")
	defer cleanupCache()

	// Generate some WAL frames to checkpoint.
	_, err := configDB.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err = configDB.Exec("INSERT INTO t (v) VALUES (?)", "row")
		require.NoError(t, err)
	}

	job := NewCheckWALCheckpointsJob(configDB.Conn(), nil, cacheDB.Conn(), nil)
	job.SetLogger(zerolog.Nop())

	assert.NoError(t, job.Run())
}
