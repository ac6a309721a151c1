// Package domain provides core domain models and types.
package domain

import "time"

// ExperimentStatus represents the lifecycle state of an experiment
type ExperimentStatus string

const (
	// ExperimentQueued - created and waiting for the work processor
	ExperimentQueued ExperimentStatus = "queued"
	// ExperimentRunning - a run is in flight
	ExperimentRunning ExperimentStatus = "running"
	// ExperimentCompleted - latest run finished and was recorded
	ExperimentCompleted ExperimentStatus = "completed"
	// ExperimentFailed - latest run errored after retries
	ExperimentFailed ExperimentStatus = "failed"
)

// Point is a single (x, y) observation in a dataset
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dataset is a named collection of sample points to fit
type Dataset struct {
	CreatedAt   time.Time `json:"created_at"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Points      []Point   `json:"points"`
}

// Experiment describes one least-squares fit to be solved on a quantum
// backend: which dataset, what polynomial degree, and how it is sampled.
type Experiment struct {
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ID          string           `json:"id"`
	DatasetID   string           `json:"dataset_id"`
	Name        string           `json:"name"`
	Backend     string           `json:"backend"`
	Status      ExperimentStatus `json:"status"`
	LastError   string           `json:"last_error,omitempty"`
	Degree      int              `json:"degree"`
	Shots       int              `json:"shots"`
	ClockQubits int              `json:"clock_qubits"`
}

// Run is one completed execution of an experiment. Rows are immutable once
// written; rerunning an experiment appends a new run.
type Run struct {
	StartedAt          time.Time          `json:"started_at"`
	FinishedAt         time.Time          `json:"finished_at"`
	ID                 string             `json:"id"`
	ExperimentID       string             `json:"experiment_id"`
	JobID              string             `json:"job_id"`
	Backend            string             `json:"backend"`
	Counts             map[string]int     `json:"counts"`
	Probabilities      map[string]float64 `json:"probabilities,omitempty"`
	QuantumSolution    []float64          `json:"quantum_solution"`
	ClassicalSolution  []float64          `json:"classical_solution"`
	Evaluation         *EvaluationReport  `json:"evaluation,omitempty"`
	SuccessProbability float64            `json:"success_probability"`
	Shots              int                `json:"shots"`
	NumQubits          int                `json:"num_qubits"`
}

// EvaluationReport compares the sampled quantum answer against the
// classical reference solution of the same system. TotalVariation is nil
// when the backend did not report an exact outcome distribution to compare
// the counts against.
type EvaluationReport struct {
	Fidelity           float64  `json:"fidelity"`
	TotalVariation     *float64 `json:"total_variation,omitempty"`
	ResidualNorm       float64  `json:"residual_norm"`
	SuccessProbability float64  `json:"success_probability"`
	ShotsUsed          int      `json:"shots_used"`
}
