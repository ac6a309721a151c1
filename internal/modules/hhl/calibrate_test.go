package hhl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCalibrateFillsZeroOptions(t *testing.T) {
	M := mat.NewSymDense(2, []float64{1.5, 0.5, 0.5, 1.5})
	opts := Options{}

	require.NoError(t, Calibrate(M, &opts))

	assert.Equal(t, defaultClockQubits, opts.ClockQubits)
	assert.Greater(t, opts.EvolutionTime, 0.0)

	// C is pinned to the smallest eigenvalue magnitude the clock can express.
	grid := float64(int(1) << opts.ClockQubits)
	assert.InDelta(t, 2*math.Pi/(grid*opts.EvolutionTime), opts.RotationConstant, 1e-12)
}

func TestCalibrateKeepsExplicitValues(t *testing.T) {
	M := mat.NewSymDense(2, []float64{1.5, 0.5, 0.5, 1.5})
	opts := Options{ClockQubits: 4, EvolutionTime: 0.5, RotationConstant: 0.3}

	require.NoError(t, Calibrate(M, &opts))

	assert.Equal(t, 4, opts.ClockQubits)
	assert.Equal(t, 0.5, opts.EvolutionTime)
	assert.Equal(t, 0.3, opts.RotationConstant)
}

func TestCalibrateRejectsZeroMatrix(t *testing.T) {
	M := mat.NewSymDense(2, nil)
	opts := Options{}

	assert.Error(t, Calibrate(M, &opts))
}

func TestCalibrateNeverWorsensHeuristic(t *testing.T) {
	M := mat.NewSymDense(3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	vals, err := eigenvalues(M)
	require.NoError(t, err)

	opts := Options{ClockQubits: 3}
	require.NoError(t, Calibrate(M, &opts))

	maxAbs := 0.0
	for _, v := range vals {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
	}
	t0 := 2 * math.Pi * 3 / (8 * maxAbs)

	refined := inversionError(vals, 3, opts.EvolutionTime)
	heuristic := inversionError(vals, 3, t0)
	assert.LessOrEqual(t, refined, heuristic)
}

func TestInversionErrorExactGridIsZero(t *testing.T) {
	// Eigenvalues 1 and 2 with t=π/4 map exactly to readings 1 and 2.
	err := inversionError([]float64{1, 2}, 3, math.Pi/4)
	assert.InDelta(t, 0, err, 1e-12)
}

func TestInversionErrorAliasingIsInfinite(t *testing.T) {
	// Huge t pushes the top eigenvalue past the signed clock window.
	err := inversionError([]float64{1, 2}, 3, 100)
	assert.True(t, math.IsInf(err, 1))
}

func TestInversionErrorFilteredEigenvalue(t *testing.T) {
	// An eigenvalue that rounds to clock reading 0 counts as a full miss.
	err := inversionError([]float64{0.01}, 3, math.Pi/4)
	assert.InDelta(t, 10000, err, 1e-6)
}

func TestSignedReading(t *testing.T) {
	assert.Equal(t, 0, signedReading(0, 3))
	assert.Equal(t, 3, signedReading(3, 3))
	assert.Equal(t, -4, signedReading(4, 3))
	assert.Equal(t, -1, signedReading(7, 3))
}
