package scheduler

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qfitlab/qfit/internal/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	JobBase
	runs int64
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	atomic.AddInt64(&j.runs, 1)
	return j.err
}

func (j *countingJob) count() int64 {
	return atomic.LoadInt64(&j.runs)
}

func TestCronRejectsBadSchedule(t *testing.T) {
	cron := New(nil, zerolog.Nop())
	err := cron.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
}

func TestCronRunsScheduledJob(t *testing.T) {
	cron := New(nil, zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, cron.AddJob("@every 10ms", job))
	cron.Start()
	defer cron.Stop()

	require.Eventually(t, func() bool {
		return job.count() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCronKeepsRunningAfterJobError(t *testing.T) {
	cron := New(nil, zerolog.Nop())
	job := &countingJob{err: fmt.Errorf("transient failure")}

	require.NoError(t, cron.AddJob("@every 10ms", job))
	cron.Start()
	defer cron.Stop()

	require.Eventually(t, func() bool {
		return job.count() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCronAddEnqueue(t *testing.T) {
	manager := queue.NewManager(queue.NewMemoryQueue(), nil)
	cron := New(manager, zerolog.Nop())

	err := cron.AddEnqueue("@every 10ms", queue.JobTypeVacuumDatabases, queue.PriorityLow, time.Hour)
	require.NoError(t, err)

	cron.Start()
	defer cron.Stop()

	require.Eventually(t, func() bool {
		return manager.Size() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Further ticks must not stack duplicates while the job is pending.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, manager.Size())
}

func TestCronRunNow(t *testing.T) {
	cron := New(nil, zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, cron.RunNow(job))
	assert.Equal(t, int64(1), job.count())

	job.err = fmt.Errorf("boom")
	assert.Error(t, cron.RunNow(job))
}
