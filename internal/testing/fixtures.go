package testing

import (
	"fmt"
	"math"
	"time"

	"github.com/qfitlab/qfit/internal/domain"
)

// NewDatasetFixture returns a dataset with n points sampled from a noisy
// quadratic, the shape most fitting tests expect.
func NewDatasetFixture(name string, n int) *domain.Dataset {
	points := make([]domain.Point, 0, n)
	for i := 0; i < n; i++ {
		x := -1.0 + 2.0*float64(i)/float64(n-1)
		// Deterministic "noise" so assertions stay stable across runs.
		noise := 0.05 * math.Sin(float64(i)*12.9898)
		points = append(points, domain.Point{
			X: x,
			Y: 0.5 + 1.5*x + 2.0*x*x + noise,
		})
	}

	return &domain.Dataset{
		ID:          "ds-" + name,
		Name:        name,
		Description: "fixture dataset",
		Points:      points,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewExperimentFixture returns a queued experiment against the given dataset.
func NewExperimentFixture(datasetID string) *domain.Experiment {
	now := time.Now().UTC()
	return &domain.Experiment{
		ID:          fmt.Sprintf("exp-%d", now.UnixNano()),
		DatasetID:   datasetID,
		Name:        "fixture experiment",
		Backend:     "local",
		Status:      domain.ExperimentQueued,
		Degree:      2,
		Shots:       1024,
		ClockQubits: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewRunFixture returns a completed run for the given experiment with a
// plausible 2-qubit outcome distribution.
func NewRunFixture(experimentID string) *domain.Run {
	now := time.Now().UTC()
	return &domain.Run{
		ID:                 fmt.Sprintf("run-%d", now.UnixNano()),
		ExperimentID:       experimentID,
		JobID:              "job-fixture",
		Backend:            "local",
		Counts:             NewCountsFixture(),
		Probabilities:      map[string]float64{"00": 0.52, "01": 0.23, "10": 0.15, "11": 0.10},
		QuantumSolution:    []float64{0.48, 1.52, 2.05},
		ClassicalSolution:  []float64{0.5, 1.5, 2.0},
		SuccessProbability: 0.38,
		Shots:              1024,
		NumQubits:          6,
		StartedAt:          now.Add(-800 * time.Millisecond),
		FinishedAt:         now,
	}
}

// NewCountsFixture returns shot tallies that sum to 1024.
func NewCountsFixture() map[string]int {
	return map[string]int{
		"00": 533,
		"01": 236,
		"10": 153,
		"11": 102,
	}
}
