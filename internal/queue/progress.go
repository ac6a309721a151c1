package queue

import (
	"time"

	"github.com/qfitlab/qfit/internal/events"
)

// ProgressReporter allows jobs to report progress during execution.
// Remote sampling jobs use it to stream shot-batch progress to the dashboard.
type ProgressReporter struct {
	bus         *events.Bus
	jobID       string
	jobType     JobType
	lastReport  time.Time
	minInterval time.Duration // Minimum interval between progress reports
}

// NewProgressReporter creates a new progress reporter with throttling.
// Default throttle is 100ms (10 updates/sec max) for real-time feel.
func NewProgressReporter(bus *events.Bus, jobID string, jobType JobType) *ProgressReporter {
	return &ProgressReporter{
		bus:         bus,
		jobID:       jobID,
		jobType:     jobType,
		minInterval: 100 * time.Millisecond,
	}
}

// Report emits a progress event (throttled to prevent flooding).
// 100% completion always bypasses the throttle.
func (pr *ProgressReporter) Report(current, total int, message string) {
	if pr.bus == nil {
		return
	}

	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval && current != total {
		return
	}
	pr.lastReport = now

	pr.bus.EmitData("queue", &events.JobStatusData{
		JobID:       pr.jobID,
		JobType:     string(pr.jobType),
		Status:      "progress",
		Description: GetJobDescription(pr.jobType),
		Progress: &events.JobProgressInfo{
			Current: current,
			Total:   total,
			Message: message,
		},
		Timestamp: now,
	})
}

// ReportWithPhase emits a progress event carrying the current phase and
// arbitrary metrics (throttled). Backup jobs use it to distinguish staging,
// uploading and rotating.
func (pr *ProgressReporter) ReportWithPhase(current, total int, message, phase string, details map[string]interface{}) {
	if pr.bus == nil {
		return
	}

	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval && current != total {
		return
	}
	pr.lastReport = now

	pr.bus.EmitData("queue", &events.JobStatusData{
		JobID:       pr.jobID,
		JobType:     string(pr.jobType),
		Status:      "progress",
		Description: GetJobDescription(pr.jobType),
		Progress: &events.JobProgressInfo{
			Current: current,
			Total:   total,
			Message: message,
			Phase:   phase,
			Details: details,
		},
		Timestamp: now,
	})
}

// ReportUnthrottled emits a progress event that always bypasses the throttle.
// Use this for critical milestones or important state changes.
func (pr *ProgressReporter) ReportUnthrottled(current, total int, message string) {
	if pr.bus == nil {
		return
	}

	now := time.Now()
	pr.lastReport = now // Update lastReport to maintain throttle state

	pr.bus.EmitData("queue", &events.JobStatusData{
		JobID:       pr.jobID,
		JobType:     string(pr.jobType),
		Status:      "progress",
		Description: GetJobDescription(pr.jobType),
		Progress: &events.JobProgressInfo{
			Current: current,
			Total:   total,
			Message: message,
		},
		Timestamp: now,
	})
}

// ReportMessage emits a progress message without count (for indeterminate progress)
func (pr *ProgressReporter) ReportMessage(message string) {
	if pr.bus == nil {
		return
	}

	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval {
		return
	}
	pr.lastReport = now

	pr.bus.EmitData("queue", &events.JobStatusData{
		JobID:       pr.jobID,
		JobType:     string(pr.jobType),
		Status:      "progress",
		Description: GetJobDescription(pr.jobType),
		Progress: &events.JobProgressInfo{
			Message: message,
		},
		Timestamp: now,
	})
}
