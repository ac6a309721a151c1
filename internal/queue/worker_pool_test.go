package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, workers int) (*WorkerPool, *Manager, *Registry, *events.Bus) {
	t.Helper()

	manager := NewManager(NewMemoryQueue(), nil)
	registry := NewRegistry()
	bus := events.NewBus(zerolog.Nop())

	pool := NewWorkerPool(manager, registry, workers)
	pool.pollInterval = 5 * time.Millisecond
	pool.retryDelay = 5 * time.Millisecond
	pool.SetEventBus(bus)

	return pool, manager, registry, bus
}

// jobRecorder counts handler invocations across goroutines.
type jobRecorder struct {
	mu   sync.Mutex
	jobs []*Job
}

func (r *jobRecorder) handler(err error) Handler {
	return func(job *Job) error {
		r.mu.Lock()
		r.jobs = append(r.jobs, job)
		r.mu.Unlock()
		return err
	}
}

func (r *jobRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestWorkerPoolRunsQueuedJob(t *testing.T) {
	pool, manager, registry, _ := newTestPool(t, 1)

	rec := &jobRecorder{}
	registry.Register(JobTypeVacuumDatabases, rec.handler(nil))

	pool.Start()
	defer pool.Stop()

	require.NoError(t, manager.Enqueue(newJob(JobTypeVacuumDatabases, PriorityMedium)))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, manager.Size())
}

func TestWorkerPoolInjectsProgressReporter(t *testing.T) {
	pool, manager, registry, _ := newTestPool(t, 1)

	got := make(chan interface{}, 1)
	registry.Register(JobTypeS3Backup, func(job *Job) error {
		got <- job.GetProgressReporter()
		return nil
	})

	pool.Start()
	defer pool.Stop()

	require.NoError(t, manager.Enqueue(newJob(JobTypeS3Backup, PriorityMedium)))

	select {
	case reporter := <-got:
		require.NotNil(t, reporter)
		_, ok := reporter.(*ProgressReporter)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("job was not executed")
	}
}

func TestWorkerPoolEmitsLifecycleEvents(t *testing.T) {
	pool, manager, registry, bus := newTestPool(t, 1)

	var mu sync.Mutex
	byType := make(map[events.EventType]map[string]interface{})
	bus.SubscribeAll(func(event *events.Event) {
		mu.Lock()
		byType[event.Type] = event.Data
		mu.Unlock()
	})

	registry.Register(JobTypeCacheCleanup, func(job *Job) error { return nil })

	pool.Start()
	defer pool.Stop()

	require.NoError(t, manager.Enqueue(newJob(JobTypeCacheCleanup, PriorityLow)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := byType[events.JobCompleted]
		return ok
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	started := byType[events.JobStarted]
	require.NotNil(t, started)
	assert.Equal(t, string(JobTypeCacheCleanup), started["job_type"])
	assert.Equal(t, "Cleaning up expired chart payloads", started["description"])

	completed := byType[events.JobCompleted]
	assert.Equal(t, "completed", completed["status"])
}

func TestWorkerPoolRetriesFailedJob(t *testing.T) {
	pool, manager, registry, _ := newTestPool(t, 1)

	rec := &jobRecorder{}
	registry.Register(JobTypeIntegrityCheck, rec.handler(errors.New("corrupt page")))

	pool.Start()
	defer pool.Stop()

	job := newJob(JobTypeIntegrityCheck, PriorityHigh)
	job.MaxRetries = 2
	require.NoError(t, manager.Enqueue(job))

	// Initial attempt plus two retries, then the job is dropped.
	require.Eventually(t, func() bool { return rec.count() == 3 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, rec.count())
	assert.Equal(t, 0, manager.Size())
}

func TestWorkerPoolFailsJobWithoutHandler(t *testing.T) {
	pool, manager, _, bus := newTestPool(t, 1)

	failed := make(chan map[string]interface{}, 1)
	bus.Subscribe(events.JobFailed, func(event *events.Event) {
		select {
		case failed <- event.Data:
		default:
		}
	})

	pool.Start()
	defer pool.Stop()

	require.NoError(t, manager.Enqueue(newJob(JobTypeHistoryCleanup, PriorityMedium)))

	select {
	case data := <-failed:
		errMsg, _ := data["error"].(string)
		assert.Contains(t, errMsg, "no handler registered")
	case <-time.After(time.Second):
		t.Fatal("expected JobFailed event")
	}
}

func TestWorkerPoolStopWaitsForWorkers(t *testing.T) {
	pool, manager, registry, _ := newTestPool(t, 2)

	release := make(chan struct{})
	done := make(chan struct{}, 1)
	registry.Register(JobTypeExperimentRun, func(job *Job) error {
		<-release
		done <- struct{}{}
		return nil
	})

	pool.Start()
	require.NoError(t, manager.Enqueue(newJob(JobTypeExperimentRun, PriorityCritical)))

	// Give a worker time to pick the job up, then stop while it is blocked.
	time.Sleep(30 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the job finished")
	}
	assert.Len(t, done, 1)
}

func TestWorkerPoolStartIsIdempotent(t *testing.T) {
	pool, _, _, _ := newTestPool(t, 1)

	pool.Start()
	pool.Start() // no-op
	pool.Stop()
	pool.Stop() // no-op
}
