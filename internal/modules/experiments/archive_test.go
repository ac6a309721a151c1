package experiments

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupArchive(t *testing.T) *ArchiveRepository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewArchiveRepository(db, zerolog.Nop())
	require.NoError(t, err)

	return repo
}

func TestArchiveRunRoundtrip(t *testing.T) {
	repo := setupArchive(t)

	counts := map[string]int{"00001": 600, "10001": 200, "00000": 224}
	require.NoError(t, repo.ArchiveRun("run-1", counts))

	got, err := repo.CountsForRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, counts, got)
}

func TestArchiveRunRequiresID(t *testing.T) {
	repo := setupArchive(t)

	assert.Error(t, repo.ArchiveRun("", map[string]int{"0": 1}))
}

func TestCountsForRunUnknown(t *testing.T) {
	repo := setupArchive(t)

	got, err := repo.CountsForRun("never-ran")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestArchiveKeepsRunsSeparate(t *testing.T) {
	repo := setupArchive(t)

	require.NoError(t, repo.ArchiveRun("run-1", map[string]int{"0": 10}))
	require.NoError(t, repo.ArchiveRun("run-2", map[string]int{"1": 20}))

	got, err := repo.CountsForRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"0": 10}, got)

	total, err := repo.Rows()
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestPruneOlderThan(t *testing.T) {
	repo := setupArchive(t)

	require.NoError(t, repo.ArchiveRun("run-new", map[string]int{"0": 1}))

	// Backdate a second run past the retention window.
	old := time.Now().AddDate(0, 0, -10).Unix()
	_, err := repo.db.Exec(
		"INSERT INTO outcome_history (run_id, bitstring, count, recorded_at) VALUES (?, ?, ?, ?)",
		"run-old", "1", 5, old,
	)
	require.NoError(t, err)

	deleted, err := repo.PruneOlderThan(7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.CountsForRun("run-old")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	kept, err := repo.CountsForRun("run-new")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestPruneRejectsZeroRetention(t *testing.T) {
	repo := setupArchive(t)

	_, err := repo.PruneOlderThan(0)
	assert.Error(t, err)
}
