package work

import (
	"context"
	"time"
)

// WorkTimeout is the maximum duration a work item can run before being
// cancelled. It has to cover a full remote-backend round trip, queue wait
// included.
const WorkTimeout = 10 * time.Minute

// MaxRetries is the maximum number of times a failed work item is attempted.
const MaxRetries = 5

// Retry backoff: the n-th retry waits retryBaseDelay·2^(n−1), capped.
const (
	retryBaseDelay = 5 * time.Second
	retryMaxDelay  = 2 * time.Minute
)

// Priority determines scan order when multiple work types have pending
// subjects: lower values are picked first.
type Priority int

const (
	// PriorityHigh is for user-visible work (running experiments).
	PriorityHigh Priority = 10
	// PriorityMedium is for backfill work (recomputing evaluations).
	PriorityMedium Priority = 30
	// PriorityLow is for derived data (chart cache refreshes).
	PriorityLow Priority = 50
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// WorkType defines a type of work that can be executed. Work types are
// registered once and generate one work item per pending subject.
type WorkType struct {
	// ID is the unique identifier for this work type (e.g. "experiment_run").
	ID string

	// DependsOn lists work type IDs that must be quiescent (no pending
	// subjects and nothing in flight) before this type is considered.
	DependsOn []string

	// Priority determines scan order when multiple types have pending work.
	Priority Priority

	// FindSubjects returns the subjects that currently need this work,
	// nil when there is none. Implementations answer from durable state.
	FindSubjects func() []string

	// Execute performs the work for one subject.
	Execute func(ctx context.Context, subject string) error
}

// WorkItem is one unit of work: a work type applied to a subject.
type WorkItem struct {
	// ID is the full work ID including the subject
	// (e.g. "experiment_run:9f1c…").
	ID string

	// TypeID is the work type ID.
	TypeID string

	// Subject identifies what the work applies to: an experiment ID for
	// experiment_run, a run ID for the backfill types.
	Subject string

	// Retries counts failed attempts so far.
	Retries int

	// NotBefore delays retried items; zero for fresh work.
	NotBefore time.Time

	// CreatedAt is when this work item was created.
	CreatedAt time.Time
}

// NewWorkItem creates a work item for a work type and subject.
func NewWorkItem(workType *WorkType, subject string) *WorkItem {
	id := workType.ID
	if subject != "" {
		id = workType.ID + ":" + subject
	}

	return &WorkItem{
		ID:        id,
		TypeID:    workType.ID,
		Subject:   subject,
		CreatedAt: time.Now(),
	}
}
