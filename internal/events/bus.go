// Package events provides the in-process event bus that connects modules:
// experiment lifecycle changes, job progress, backups, and health checks all
// flow through here and out to the SSE stream.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	// Experiment lifecycle
	ExperimentQueued    EventType = "EXPERIMENT_QUEUED"
	ExperimentStarted   EventType = "EXPERIMENT_STARTED"
	ExperimentCompleted EventType = "EXPERIMENT_COMPLETED"
	ExperimentFailed    EventType = "EXPERIMENT_FAILED"

	// Sampling progress (remote backends report in batches)
	ShotProgress EventType = "SHOT_PROGRESS"

	// Data management
	DatasetChanged  EventType = "DATASET_CHANGED"
	SettingsChanged EventType = "SETTINGS_CHANGED"

	// Backend connectivity
	BackendStatusChanged EventType = "BACKEND_STATUS_CHANGED"

	// Maintenance and reliability
	BackupCompleted EventType = "BACKUP_COMPLETED"
	DatabaseHealth  EventType = "DATABASE_HEALTH"

	// Job lifecycle (queue manager)
	JobStarted   EventType = "JOB_STARTED"
	JobProgress  EventType = "JOB_PROGRESS"
	JobCompleted EventType = "JOB_COMPLETED"
	JobFailed    EventType = "JOB_FAILED"

	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler is called for each delivered event. Handlers must be fast; anything
// slow should hand off to its own goroutine or channel.
type Handler func(event *Event)

// Bus handles event emission, subscription and logging
type Bus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]Handler
	allHandlers []Handler
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
// Used by the SSE stream to fan events out to connected clients.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Emit emits an event to all matching subscribers
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	// Log event
	eventJSON, _ := json.Marshal(event)
	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	// Snapshot handlers under the read lock, call outside it so a handler
	// can subscribe/emit without deadlocking.
	b.mu.RLock()
	typed := make([]Handler, len(b.handlers[eventType]))
	copy(typed, b.handlers[eventType])
	all := make([]Handler, len(b.allHandlers))
	copy(all, b.allHandlers)
	b.mu.RUnlock()

	for _, h := range typed {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}

// EmitData emits a typed event payload, flattening it through JSON so SSE
// clients and map-based subscribers see the same field names.
func (b *Bus) EmitData(module string, data EventData) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.log.Error().Err(err).Str("module", module).Msg("Failed to marshal event data")
		return
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		b.log.Error().Err(err).Str("module", module).Msg("Failed to flatten event data")
		return
	}
	b.Emit(data.EventType(), module, m)
}

// EmitError emits an error event
func (b *Bus) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	b.Emit(ErrorOccurred, module, data)
}
