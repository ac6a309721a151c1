package scheduler

import "github.com/qfitlab/qfit/internal/scheduler/base"

// JobBase re-exports base.JobBase so jobs in this package can embed it
// directly. GetProgressReporter() returns interface{}; type assert to the
// queue progress reporter when needed.
type JobBase = base.JobBase
