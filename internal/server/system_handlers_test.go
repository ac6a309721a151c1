package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/di"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContainer(t *testing.T) (*di.Container, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		DataDir:              t.TempDir(),
		Port:                 8042,
		MaxQubits:            20,
		DefaultShots:         1024,
		DefaultBackend:       "local",
		DefaultClockQubits:   3,
		HistoryRetentionDays: 90,
		Backup:               &config.BackupConfig{},
	}

	container, _, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return container, cfg
}

func newTestSystemHandlers(t *testing.T) *SystemHandlers {
	t.Helper()
	container, cfg := newTestContainer(t)
	return NewSystemHandlers(SystemHandlersConfig{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		StartedAt: time.Now(),
	})
}

func TestHandleSystemStatus(t *testing.T) {
	h := newTestSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()
	h.HandleSystemStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "running", body["status"])
	assert.EqualValues(t, 2, body["datasets"], "seeded walkthrough datasets")
	assert.Contains(t, body["backends"], "local")

	tallies, ok := body["experiments"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 0, tallies["queued"])
}

func TestHandleMemoryReportsAmplitudeBudget(t *testing.T) {
	h := newTestSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/memory", nil)
	rec := httptest.NewRecorder()
	h.HandleMemory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	safe, ok := body["max_safe_qubits"].(float64)
	require.True(t, ok)
	assert.Greater(t, safe, 0.0)
	assert.LessOrEqual(t, safe, 20.0, "capped at the configured ceiling")
}

func TestMaxSafeQubits(t *testing.T) {
	h := newTestSystemHandlers(t)

	// 1 GiB available, halved to 512 MiB budget: 2^25 amplitudes at 16
	// bytes each, capped at the configured 20.
	assert.Equal(t, 20, h.maxSafeQubits(1<<30))

	// 64 KiB budget after halving holds 2^12 amplitudes.
	assert.Equal(t, 12, h.maxSafeQubits(1<<17))

	// Less than one amplitude.
	assert.Equal(t, 0, h.maxSafeQubits(8))
}

func TestHandleTriggerJob(t *testing.T) {
	h := newTestSystemHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/wal_checkpoint", nil)
	rec := httptest.NewRecorder()
	h.HandleTriggerJob(rec, req, "wal_checkpoint")

	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "wal_checkpoint", body["job_type"])
	assert.NotEmpty(t, body["job_id"])
}

func TestHandleTriggerJobUnknownType(t *testing.T) {
	h := newTestSystemHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleTriggerJob(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/nope", nil), "nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRoutes(t *testing.T) {
	container, cfg := newTestContainer(t)

	srv := New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   true,
		Container: container,
	})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/system/status", http.StatusOK},
		{http.MethodGet, "/api/backends", http.StatusOK},
		{http.MethodGet, "/api/datasets/", http.StatusOK},
		{http.MethodGet, "/api/experiments/", http.StatusOK},
		{http.MethodGet, "/api/settings/", http.StatusOK},
		{http.MethodGet, "/api/work/types", http.StatusOK},
		{http.MethodGet, "/api/does-not-exist", http.StatusNotFound},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}
}
