package fitting

import (
	"testing"

	"github.com/qfitlab/qfit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDesignMatrixPolynomialBasis(t *testing.T) {
	points := []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 4}}
	A := DesignMatrix(points, 2)

	rows, cols := A.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 3, cols)

	assert.Equal(t, []float64{1, 0, 0}, mat.Row(nil, 0, A))
	assert.Equal(t, []float64{1, 1, 1}, mat.Row(nil, 1, A))
	assert.Equal(t, []float64{1, 2, 4}, mat.Row(nil, 2, A))
}

func TestNormalEquationsHandComputed(t *testing.T) {
	// Linear fit through (0,0), (1,1), (2,2):
	// AᵀA = [[3,3],[3,5]], Aᵀy = (3,5).
	points := []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}
	A := DesignMatrix(points, 1)
	y := mat.NewVecDense(3, []float64{0, 1, 2})

	M, b := NormalEquations(A, y)

	assert.InDelta(t, 3, M.At(0, 0), 1e-12)
	assert.InDelta(t, 3, M.At(0, 1), 1e-12)
	assert.InDelta(t, 3, M.At(1, 0), 1e-12)
	assert.InDelta(t, 5, M.At(1, 1), 1e-12)
	assert.InDelta(t, 3, b.AtVec(0), 1e-12)
	assert.InDelta(t, 5, b.AtVec(1), 1e-12)
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, NextPowerOfTwo(0))
	assert.Equal(t, 1, NextPowerOfTwo(1))
	assert.Equal(t, 2, NextPowerOfTwo(2))
	assert.Equal(t, 4, NextPowerOfTwo(3))
	assert.Equal(t, 4, NextPowerOfTwo(4))
	assert.Equal(t, 8, NextPowerOfTwo(5))
	assert.Equal(t, 16, NextPowerOfTwo(9))
}

func TestPadPreservesLeadingBlockAndSolution(t *testing.T) {
	M := mat.NewSymDense(3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	b := mat.NewVecDense(3, []float64{1, 2, 3})

	original, err := ClassicalSolution(M, b)
	require.NoError(t, err)

	Mp, bp := Pad(M, b, 4)
	require.Equal(t, 4, Mp.SymmetricDim())
	require.Equal(t, 4, bp.Len())

	// Leading block untouched, filler is the identity with zero RHS.
	assert.InDelta(t, 4, Mp.At(0, 0), 1e-12)
	assert.InDelta(t, 1, Mp.At(1, 0), 1e-12)
	assert.InDelta(t, 1, Mp.At(3, 3), 1e-12)
	assert.InDelta(t, 0, Mp.At(3, 0), 1e-12)
	assert.InDelta(t, 0, bp.AtVec(3), 1e-12)

	padded, err := ClassicalSolution(Mp, bp)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, original.AtVec(i), padded.AtVec(i), 1e-10)
	}
	assert.InDelta(t, 0, padded.AtVec(3), 1e-12)
}

func TestPadPassThroughWhenAlreadySized(t *testing.T) {
	M := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		M.SetSym(i, i, 1)
	}
	b := mat.NewVecDense(4, []float64{1, 2, 3, 4})

	Mp, bp := Pad(M, b, 4)
	assert.Same(t, M, Mp)
	assert.Same(t, b, bp)
}

func TestClassicalSolutionSingularMatrix(t *testing.T) {
	M := mat.NewSymDense(2, []float64{
		1, 1,
		1, 1,
	})
	b := mat.NewVecDense(2, []float64{1, 0})

	_, err := ClassicalSolution(M, b)
	assert.Error(t, err)
}

func TestBuildProblemQuadraticFit(t *testing.T) {
	// Perfect parabola y = x²: coefficients must come out (0, 0, 1).
	points := []domain.Point{
		{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 4}, {X: 3, Y: 9},
	}

	p, err := BuildProblem(points, Options{Degree: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, p.Dim)
	assert.Equal(t, 4, p.PaddedDim)
	assert.Equal(t, []string{"c0", "c1", "c2", "pad3"}, p.Labels)

	x, err := ClassicalSolution(p.Matrix, p.RHS)
	require.NoError(t, err)
	assert.InDelta(t, 0, x.AtVec(0), 1e-9)
	assert.InDelta(t, 0, x.AtVec(1), 1e-9)
	assert.InDelta(t, 1, x.AtVec(2), 1e-9)
	assert.InDelta(t, 0, x.AtVec(3), 1e-9)
}

func TestBuildProblemLinearRampStaysUnpadded(t *testing.T) {
	// Degree 1 means a 2×2 system, already a power of two.
	points := []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}

	p, err := BuildProblem(points, Options{Degree: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, p.Dim)
	assert.Equal(t, 2, p.PaddedDim)

	x, err := ClassicalSolution(p.Matrix, p.RHS)
	require.NoError(t, err)
	assert.InDelta(t, 0, x.AtVec(0), 1e-9)
	assert.InDelta(t, 1, x.AtVec(1), 1e-9)
}

func TestBuildProblemValidation(t *testing.T) {
	points := []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}

	_, err := BuildProblem(points, Options{Degree: 2})
	assert.ErrorContains(t, err, "need at least 3 points")

	_, err = BuildProblem(points, Options{Degree: -1})
	assert.ErrorContains(t, err, "non-negative")
}
