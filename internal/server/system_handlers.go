// Package server provides the HTTP server and routing for qfit.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/database"
	"github.com/qfitlab/qfit/internal/di"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/qfitlab/qfit/internal/queue"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// amplitudeBytes is the memory cost of one state-vector amplitude
// (complex128).
const amplitudeBytes = 16

// SystemHandlersConfig holds dependencies for the system handlers.
type SystemHandlersConfig struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
	StartedAt time.Time
}

// SystemHandlers serves the monitoring endpoints: status, memory, database
// stats, disk usage, backend listing and manual job triggers.
type SystemHandlers struct {
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	startedAt time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(cfg SystemHandlersConfig) *SystemHandlers {
	return &SystemHandlers{
		log:       cfg.Log.With().Str("handler", "system").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		startedAt: cfg.StartedAt,
	}
}

// HandleSystemStatus handles GET /api/system/status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	tallies := make(map[string]int)
	for _, status := range []domain.ExperimentStatus{
		domain.ExperimentQueued,
		domain.ExperimentRunning,
		domain.ExperimentCompleted,
		domain.ExperimentFailed,
	} {
		exps, err := h.container.ExperimentRepo.ExperimentsByStatus(status)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to tally experiments: %w", err))
			return
		}
		tallies[string(status)] = len(exps)
	}

	datasetCount, err := h.container.DatasetRepo.Count()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to count datasets: %w", err))
		return
	}

	response := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"experiments":    tallies,
		"datasets":       datasetCount,
		"backends":       h.container.BackendRegistry.List(),
		"queue_size":     h.container.QueueManager.Size(),
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleMemory handles GET /api/system/memory. Besides the host numbers it
// reports the amplitude budget: the widest circuit whose state vector fits
// in available memory, since a dense simulation of n qubits holds 2^n
// complex128 amplitudes.
func (h *SystemHandlers) HandleMemory(w http.ResponseWriter, r *http.Request) {
	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to read memory stats: %w", err))
		return
	}

	cpuPercent := 0.0
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}

	response := map[string]interface{}{
		"total_bytes":     memStat.Total,
		"available_bytes": memStat.Available,
		"used_percent":    memStat.UsedPercent,
		"cpu_percent":     cpuPercent,
		"max_safe_qubits": h.maxSafeQubits(memStat.Available),
		"max_qubits":      h.cfg.MaxQubits,
	}

	h.writeJSON(w, http.StatusOK, response)
}

// maxSafeQubits computes the largest qubit count whose full state vector
// fits in half the currently available memory, capped at the configured
// ceiling. Half, because the simulator needs scratch space for controlled
// unitaries on top of the vector itself.
func (h *SystemHandlers) maxSafeQubits(availableBytes uint64) int {
	budget := availableBytes / 2
	n := 0
	for cost := uint64(amplitudeBytes); cost <= budget && n < quantum.MaxQubits; {
		n++
		cost *= 2
	}
	if n > h.cfg.MaxQubits {
		n = h.cfg.MaxQubits
	}
	return n
}

// HandleDatabaseStats handles GET /api/system/databases.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	for _, db := range []*database.DB{
		h.container.ConfigDB,
		h.container.ResultsDB,
		h.container.CacheDB,
	} {
		s, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		stats[db.Name()] = map[string]interface{}{
			"size_bytes":     s.SizeBytes,
			"wal_size_bytes": s.WALSizeBytes,
			"page_count":     s.PageCount,
			"page_size":      s.PageSize,
			"freelist_count": s.FreelistCount,
		}
	}

	// history.db is a bare connection; report the file size only.
	historyPath := filepath.Join(h.cfg.DataDir, "history.db")
	if info, err := os.Stat(historyPath); err == nil {
		stats["history"] = map[string]interface{}{"size_bytes": info.Size()}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"databases": stats})
}

// HandleDiskUsage handles GET /api/system/disk.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	files := make(map[string]int64)
	var total int64

	err := filepath.Walk(h.cfg.DataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(h.cfg.DataDir, path)
		if relErr != nil {
			rel = info.Name()
		}
		files[rel] = info.Size()
		total += info.Size()
		return nil
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to walk data directory: %w", err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data_dir":    h.cfg.DataDir,
		"total_bytes": total,
		"files":       files,
	})
}

// HandleBackends handles GET /api/backends.
func (h *SystemHandlers) HandleBackends(w http.ResponseWriter, r *http.Request) {
	list := make([]map[string]interface{}, 0)

	for _, name := range h.container.BackendRegistry.List() {
		backend, err := h.container.BackendRegistry.Get(name)
		if err != nil {
			continue
		}
		entry := map[string]interface{}{
			"name":       backend.Name(),
			"num_qubits": backend.NumQubits(),
			"default":    backend.Name() == h.cfg.DefaultBackend,
		}
		if backend == h.container.RemoteBackend && h.container.RemoteBackend != nil {
			entry["connected"] = h.container.RemoteBackend.IsConnected()
		}
		list = append(list, entry)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"backends": list})
}

// HandleJobsStatus handles GET /api/system/jobs: queue depth plus the most
// recent job attempts from history.db.
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	recent, err := h.container.JobHistory.Recent(20)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to read job history: %w", err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue_size": h.container.QueueManager.Size(),
		"recent":     recent,
	})
}

// HandleTriggerJob handles POST /api/jobs/{type}: manually enqueue a
// registered maintenance job at high priority.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request, jobType string) {
	jt := queue.JobType(jobType)
	if !h.container.QueueRegistry.Has(jt) {
		h.writeError(w, http.StatusNotFound, fmt.Errorf("unknown job type: %s", jobType))
		return
	}

	job := &queue.Job{
		ID:          fmt.Sprintf("%s-manual-%d", jt, time.Now().UnixNano()),
		Type:        jt,
		Priority:    queue.PriorityHigh,
		CreatedAt:   time.Now(),
		AvailableAt: time.Now(),
		MaxRetries:  1,
	}

	if err := h.container.QueueManager.Enqueue(job); err != nil {
		h.writeError(w, http.StatusConflict, fmt.Errorf("failed to enqueue %s: %w", jobType, err))
		return
	}

	h.log.Info().Str("job_type", jobType).Str("job_id", job.ID).Msg("Job triggered manually")

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":      job.ID,
		"job_type":    jobType,
		"description": queue.GetJobDescription(jt),
	})
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *SystemHandlers) writeError(w http.ResponseWriter, status int, err error) {
	h.log.Error().Err(err).Int("status", status).Msg("Request failed")
	h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}
