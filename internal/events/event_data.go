package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// ExperimentQueuedData contains data for ExperimentQueued events
type ExperimentQueuedData struct {
	ExperimentID string `json:"experiment_id"`
	DatasetID    string `json:"dataset_id"`
	Backend      string `json:"backend"`
	Shots        int    `json:"shots"`
}

// EventType returns the event type for ExperimentQueuedData
func (d *ExperimentQueuedData) EventType() EventType {
	return ExperimentQueued
}

// ExperimentStartedData contains data for ExperimentStarted events
type ExperimentStartedData struct {
	ExperimentID string `json:"experiment_id"`
	RunID        string `json:"run_id"`
	Backend      string `json:"backend"`
	NumQubits    int    `json:"num_qubits"`
}

// EventType returns the event type for ExperimentStartedData
func (d *ExperimentStartedData) EventType() EventType {
	return ExperimentStarted
}

// ExperimentCompletedData contains data for ExperimentCompleted events
type ExperimentCompletedData struct {
	ExperimentID       string  `json:"experiment_id"`
	RunID              string  `json:"run_id"`
	Fidelity           float64 `json:"fidelity"`
	SuccessProbability float64 `json:"success_probability"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

// EventType returns the event type for ExperimentCompletedData
func (d *ExperimentCompletedData) EventType() EventType {
	return ExperimentCompleted
}

// ExperimentFailedData contains data for ExperimentFailed events
type ExperimentFailedData struct {
	ExperimentID string `json:"experiment_id"`
	Error        string `json:"error"`
	Retries      int    `json:"retries"`
}

// EventType returns the event type for ExperimentFailedData
func (d *ExperimentFailedData) EventType() EventType {
	return ExperimentFailed
}

// ShotProgressData contains data for ShotProgress events
type ShotProgressData struct {
	RunID     string `json:"run_id"`
	Backend   string `json:"backend"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// EventType returns the event type for ShotProgressData
func (d *ShotProgressData) EventType() EventType {
	return ShotProgress
}

// DatasetChangedData contains data for DatasetChanged events
type DatasetChangedData struct {
	DatasetID string `json:"dataset_id"`
	Action    string `json:"action"` // "created", "deleted"
	Points    int    `json:"points,omitempty"`
}

// EventType returns the event type for DatasetChangedData
func (d *DatasetChangedData) EventType() EventType {
	return DatasetChanged
}

// SettingsChangedData contains data for SettingsChanged events
type SettingsChangedData struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// EventType returns the event type for SettingsChangedData
func (d *SettingsChangedData) EventType() EventType {
	return SettingsChanged
}

// BackendStatusChangedData contains data for BackendStatusChanged events
type BackendStatusChangedData struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for BackendStatusChangedData
func (d *BackendStatusChangedData) EventType() EventType {
	return BackendStatusChanged
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Archive         string  `json:"archive"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// DatabaseHealthData contains data for DatabaseHealth events
type DatabaseHealthData struct {
	Database string `json:"database"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
}

// EventType returns the event type for DatabaseHealthData
func (d *DatabaseHealthData) EventType() EventType {
	return DatabaseHealth
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobProgressInfo contains progress information for a job.
type JobProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`

	// Phase identifies the current high-level operation (e.g., "staging",
	// "uploading", "rotating" for backups)
	Phase string `json:"phase,omitempty"`

	// Details contains arbitrary key-value metrics for the current phase.
	Details map[string]interface{} `json:"details,omitempty"`
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobID       string                 `json:"job_id"`
	JobType     string                 `json:"job_type"`
	Status      string                 `json:"status"` // "started", "progress", "completed", "failed"
	Description string                 `json:"description"`
	Progress    *JobProgressInfo       `json:"progress,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Duration    float64                `json:"duration,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	// Marshal the data separately
	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// Unmarshal data based on event type
	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case ExperimentQueued:
			eventData = &ExperimentQueuedData{}
		case ExperimentStarted:
			eventData = &ExperimentStartedData{}
		case ExperimentCompleted:
			eventData = &ExperimentCompletedData{}
		case ExperimentFailed:
			eventData = &ExperimentFailedData{}
		case ShotProgress:
			eventData = &ShotProgressData{}
		case DatasetChanged:
			eventData = &DatasetChangedData{}
		case SettingsChanged:
			eventData = &SettingsChangedData{}
		case BackendStatusChanged:
			eventData = &BackendStatusChangedData{}
		case BackupCompleted:
			eventData = &BackupCompletedData{}
		case DatabaseHealth:
			eventData = &DatabaseHealthData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		case JobStarted, JobProgress, JobCompleted, JobFailed:
			eventData = &JobStatusData{}
		default:
			// For unknown types, use raw map
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			// Convert to generic data type
			eventData = &GenericEventData{Data: rawData}
		}

		if eventData != nil {
			if err := json.Unmarshal(aux.Data, eventData); err != nil {
				return err
			}
			e.Data = eventData
		}
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
