package scheduler

import "github.com/rs/zerolog"

// WorkTrigger nudges the background work processor.
type WorkTrigger interface {
	Trigger()
}

// ExperimentSweepJob wakes the work processor so it re-checks for pending
// work. Experiments normally ride their creation events, but cache expiry
// and restarts create pending work with no event attached; the periodic
// sweep picks those up.
type ExperimentSweepJob struct {
	JobBase
	processor WorkTrigger
	log       zerolog.Logger
}

// NewExperimentSweepJob creates a new experiment sweep job
func NewExperimentSweepJob(processor WorkTrigger, log zerolog.Logger) *ExperimentSweepJob {
	return &ExperimentSweepJob{
		processor: processor,
		log:       log.With().Str("job", "experiment_run").Logger(),
	}
}

// Name returns the job name
func (j *ExperimentSweepJob) Name() string {
	return "experiment_run"
}

// Run nudges the processor. The trigger is non-blocking, so this never
// waits on in-flight work.
func (j *ExperimentSweepJob) Run() error {
	j.processor.Trigger()
	j.log.Debug().Msg("Work processor nudged")
	return nil
}
