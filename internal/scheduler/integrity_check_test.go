package scheduler

import (
	"testing"

	"github.com/qfitlab/qfit/internal/events"
	qfittesting "github.com/qfitlab/qfit/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrityCheckJob_Name(t *testing.T) {
	job := NewIntegrityCheckJob(nil, nil, nil, nil, nil)
	assert.Equal(t, "integrity_check", job.Name())
}

func TestIntegrityCheckJob_Run_AllHealthy(t *testing.T) {
	configDB, cleanupConfig := qfittesting.NewTestDB(t, "config")
	defer cleanupConfig()
	cacheDB, cleanupCache := qfittesting.NewTestDB(t, "cache")
	defer cleanupCache()

	bus := events.NewBus(zerolog.Nop())
	var reports []*events.Event
	bus.Subscribe(events.DatabaseHealth, func(e *events.Event) {
		reports = append(reports, e)
	})

	job := NewIntegrityCheckJob(configDB.Conn(), nil, cacheDB.Conn(), nil, bus)
	job.SetLogger(zerolog.Nop())

	require.NoError(t, job.Run())

	// One report per checked database; nil connections are skipped.
	require.Len(t, reports, 2)
	var names []string
	for _, e := range reports {
		assert.Equal(t, true, e.Data["healthy"])
		names = append(names, e.Data["database"].(string))
	}
	assert.Equal(t, []string{"config", "cache"}, names)
}

func TestIntegrityCheckJob_Run_ReportsUnhealthyDatabase(t *testing.T) {
	configDB, cleanupConfig := qfittesting.NewTestDB(t, "config")
	defer cleanupConfig()
	cacheDB, cleanupCache := qfittesting.NewTestDB(t, "cache")
	cleanupCache() // Closed connection makes the integrity query fail.

	bus := events.NewBus(zerolog.Nop())
	var unhealthy []*events.Event
	bus.Subscribe(events.DatabaseHealth, func(e *events.Event) {
		if healthy, _ := e.Data["healthy"].(bool); !healthy {
			unhealthy = append(unhealthy, e)
		}
	})

	job := NewIntegrityCheckJob(configDB.Conn(), nil, cacheDB.Conn(), nil, bus)
	job.SetLogger(zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache")
	assert.NotContains(t, err.Error(), "config")

	require.Len(t, unhealthy, 1)
	assert.Equal(t, "cache", unhealthy[0].Data["database"])
	assert.NotEmpty(t, unhealthy[0].Data["error"])
}

func TestIntegrityCheckJob_Run_NilBus(t *testing.T) {
	configDB, cleanup := qfittesting.NewTestDB(t, "config")
	defer cleanup()

	job := NewIntegrityCheckJob(configDB.Conn(), nil, nil, nil, nil)
	job.SetLogger(zerolog.Nop())

	assert.NoError(t, job.Run())
}
