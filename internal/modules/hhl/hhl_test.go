package hhl

import (
	"context"
	"math"
	"testing"

	"github.com/qfitlab/qfit/internal/backends"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/modules/fitting"
	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// twoByTwoProblem wraps a hand-built 2×2 system so circuit synthesis can be
// checked against closed-form expectations.
func twoByTwoProblem(m00, m01, m11, b0, b1 float64) *fitting.Problem {
	return &fitting.Problem{
		Matrix:    mat.NewSymDense(2, []float64{m00, m01, m01, m11}),
		RHS:       mat.NewVecDense(2, []float64{b0, b1}),
		Dim:       2,
		PaddedDim: 2,
		Labels:    []string{"c0", "c1"},
	}
}

// registerMarginals folds a full-register distribution down to the ancilla=1
// branch: total success probability, conditional system distribution, and
// any probability stuck in nonzero clock states after uncompute.
func registerMarginals(probs []float64, layout Layout) (success float64, conditional []float64, leakage float64) {
	conditional = make([]float64, 1<<len(layout.System))
	for i, p := range probs {
		if i&(1<<layout.Ancilla) == 0 {
			continue
		}
		success += p

		sys := 0
		for j, q := range layout.System {
			if i&(1<<q) != 0 {
				sys |= 1 << j
			}
		}
		conditional[sys] += p

		clock := 0
		for j, q := range layout.Clock {
			if i&(1<<q) != 0 {
				clock |= 1 << j
			}
		}
		if clock != 0 {
			leakage += p
		}
	}
	for i := range conditional {
		conditional[i] /= success
	}
	return success, conditional, leakage
}

func TestSolvesWellConditionedSystem(t *testing.T) {
	// M has eigenvalues 1 and 2; with t=π/4 and 3 clock qubits they land
	// exactly on clock readings 1 and 2, so the whole circuit is exact.
	// The solution of M·x=(1,0) is x=(3/4,−1/4):
	//   P(ancilla=1) = 5/8, conditional distribution (9/10, 1/10).
	p := twoByTwoProblem(1.5, 0.5, 1.5, 1, 0)
	opts := Options{ClockQubits: 3, EvolutionTime: math.Pi / 4, RotationConstant: 1}

	circuit, layout, err := BuildCircuit(p, opts)
	require.NoError(t, err)
	assert.Equal(t, 5, circuit.NumQubits)
	assert.Equal(t, []int{0}, layout.System)
	assert.Equal(t, []int{1, 2, 3}, layout.Clock)
	assert.Equal(t, 4, layout.Ancilla)

	state, err := quantum.Run(circuit)
	require.NoError(t, err)

	success, conditional, leakage := registerMarginals(state.Probabilities(), layout)
	assert.InDelta(t, 0.625, success, 1e-9)
	assert.InDelta(t, 0.9, conditional[0], 1e-9)
	assert.InDelta(t, 0.1, conditional[1], 1e-9)
	assert.Less(t, leakage, 1e-9)
}

func TestSolvesNegativeEigenvalueSystem(t *testing.T) {
	// Indefinite M with eigenvalues 2 and −1. The negative eigenvalue reads
	// out as two's-complement clock value 7; the solution of M·x=(1,0) is
	// x=(−1/4, 3/4), so the conditional distribution flips to (1/10, 9/10).
	p := twoByTwoProblem(0.5, 1.5, 0.5, 1, 0)
	opts := Options{ClockQubits: 3, EvolutionTime: math.Pi / 4, RotationConstant: 1}

	circuit, layout, err := BuildCircuit(p, opts)
	require.NoError(t, err)

	state, err := quantum.Run(circuit)
	require.NoError(t, err)

	success, conditional, leakage := registerMarginals(state.Probabilities(), layout)
	assert.InDelta(t, 0.625, success, 1e-9)
	assert.InDelta(t, 0.1, conditional[0], 1e-9)
	assert.InDelta(t, 0.9, conditional[1], 1e-9)
	assert.Less(t, leakage, 1e-9)
}

func TestSampledSolutionMatchesAnalytic(t *testing.T) {
	p := twoByTwoProblem(1.5, 0.5, 1.5, 1, 0)
	opts := Options{ClockQubits: 3, EvolutionTime: math.Pi / 4, RotationConstant: 1, Shots: 4096}

	circuit, layout, err := BuildCircuit(p, opts)
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	backend := backends.NewLocalBackend(10, 1024, quantum.NewSampler(7), log)

	jobID, err := backend.Submit(context.Background(), circuit)
	require.NoError(t, err)
	result, err := backend.Results(context.Background(), jobID)
	require.NoError(t, err)

	solution, err := ExtractSolution(result, layout, p.Dim)
	require.NoError(t, err)

	// |x|/‖x‖ = (3,1)/√10.
	assert.InDelta(t, 3/math.Sqrt(10), solution.Amplitudes[0], 0.05)
	assert.InDelta(t, 1/math.Sqrt(10), solution.Amplitudes[1], 0.05)
	assert.InDelta(t, 0.625, solution.SuccessProbability, 0.05)
}

func TestBuildCircuitCalibratesZeroOptions(t *testing.T) {
	points := []domain.Point{
		{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 4}, {X: 3, Y: 9},
	}
	p, err := fitting.BuildProblem(points, fitting.Options{Degree: 2})
	require.NoError(t, err)

	circuit, layout, err := BuildCircuit(p, Options{})
	require.NoError(t, err)

	// 2 system qubits for the padded 4-dim block, 3 clock by default.
	assert.Equal(t, 6, circuit.NumQubits)
	assert.Equal(t, []int{0, 1}, layout.System)
	assert.Equal(t, []int{2, 3, 4}, layout.Clock)
	assert.Equal(t, 5, layout.Ancilla)

	require.NoError(t, circuit.Validate())
	assert.NotZero(t, circuit.Metadata["evolution_time"])
	assert.NotZero(t, circuit.Metadata["rotation_constant"])
}

func TestBuildCircuitRejectsZeroRHS(t *testing.T) {
	p := twoByTwoProblem(1.5, 0.5, 1.5, 0, 0)
	_, _, err := BuildCircuit(p, Options{ClockQubits: 3, EvolutionTime: 1, RotationConstant: 0.5})
	assert.ErrorContains(t, err, "zero norm")
}

func TestStatePreparationDistribution(t *testing.T) {
	v := []float64{math.Sqrt(0.1), math.Sqrt(0.2), math.Sqrt(0.3), math.Sqrt(0.4)}

	sv, err := quantum.NewStateVector(2)
	require.NoError(t, err)
	for _, g := range statePreparationGates(v, []int{0, 1}) {
		require.NoError(t, sv.Apply(g))
	}

	probs := sv.Probabilities()
	assert.InDelta(t, 0.1, probs[0], 1e-12)
	assert.InDelta(t, 0.2, probs[1], 1e-12)
	assert.InDelta(t, 0.3, probs[2], 1e-12)
	assert.InDelta(t, 0.4, probs[3], 1e-12)
}

func TestStatePreparationSignedAmplitudes(t *testing.T) {
	v := []float64{0.5, -0.5, -0.5, 0.5}

	sv, err := quantum.NewStateVector(2)
	require.NoError(t, err)
	for _, g := range statePreparationGates(v, []int{0, 1}) {
		require.NoError(t, sv.Apply(g))
	}

	amps := sv.Amplitudes()
	for i, want := range v {
		assert.InDelta(t, want, real(amps[i]), 1e-12)
		assert.InDelta(t, 0, imag(amps[i]), 1e-12)
	}
}

func TestEigenvalueForReadingTwosComplement(t *testing.T) {
	tTime := math.Pi / 4

	assert.InDelta(t, 1, eigenvalueForReading(1, 3, tTime), 1e-12)
	assert.InDelta(t, 2, eigenvalueForReading(2, 3, tTime), 1e-12)
	assert.InDelta(t, 3, eigenvalueForReading(3, 3, tTime), 1e-12)
	assert.InDelta(t, -4, eigenvalueForReading(4, 3, tTime), 1e-12)
	assert.InDelta(t, -1, eigenvalueForReading(7, 3, tTime), 1e-12)
}

func TestExtractSolutionPostSelection(t *testing.T) {
	layout := Layout{System: []int{0}, Clock: []int{1, 2, 3}, Ancilla: 4}
	res := &backends.ExecutionResult{
		NumQubits: 5,
		Counts: map[string]int{
			"10000": 90,  // ancilla=1, system=0
			"10001": 10,  // ancilla=1, system=1
			"00000": 100, // ancilla=0, discarded
		},
	}

	solution, err := ExtractSolution(res, layout, 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, solution.SuccessProbability, 1e-12)
	assert.InDelta(t, math.Sqrt(0.9), solution.Amplitudes[0], 1e-12)
	assert.InDelta(t, math.Sqrt(0.1), solution.Amplitudes[1], 1e-12)
	assert.Equal(t, map[string]int{"0": 90, "1": 10}, solution.Counts)
}

func TestExtractSolutionNoSuccessfulShots(t *testing.T) {
	layout := Layout{System: []int{0}, Clock: []int{1, 2, 3}, Ancilla: 4}
	res := &backends.ExecutionResult{
		NumQubits: 5,
		Counts:    map[string]int{"00000": 128},
	}

	_, err := ExtractSolution(res, layout, 2)
	assert.ErrorIs(t, err, ErrNoSuccessfulShots)
}

func TestExtractSolutionMalformedBitstring(t *testing.T) {
	layout := Layout{System: []int{0}, Clock: []int{1, 2, 3}, Ancilla: 4}
	res := &backends.ExecutionResult{
		NumQubits: 5,
		Counts:    map[string]int{"101": 4},
	}

	_, err := ExtractSolution(res, layout, 2)
	assert.ErrorContains(t, err, "register width")
}
