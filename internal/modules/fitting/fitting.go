// Package fitting turns a small set of sample points into the linear system
// the rest of the pipeline works on: the polynomial least-squares normal
// equations, padded up to a power-of-two dimension so the system register of
// a quantum circuit can hold it.
package fitting

import (
	"fmt"

	"github.com/qfitlab/qfit/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// Problem is a prepared linear system M·x = b.
//
// Matrix and RHS are already padded: dimensions PaddedDim × PaddedDim and
// PaddedDim. The leading Dim × Dim block is the original normal matrix; the
// padding block is the identity with zero right-hand side, so the original
// solution coefficients are unchanged.
type Problem struct {
	Matrix    *mat.SymDense
	RHS       *mat.VecDense
	Dim       int
	PaddedDim int
	Labels    []string
}

// Options controls problem construction.
type Options struct {
	// Degree of the fitted polynomial. The system has Degree+1 unknowns.
	Degree int
}

// DesignMatrix builds the polynomial design matrix for the given points:
// row i is (1, x_i, x_i², …, x_i^degree).
func DesignMatrix(points []domain.Point, degree int) *mat.Dense {
	rows := len(points)
	cols := degree + 1

	A := mat.NewDense(rows, cols, nil)
	for i, p := range points {
		v := 1.0
		for j := 0; j < cols; j++ {
			A.Set(i, j, v)
			v *= p.X
		}
	}
	return A
}

// NormalEquations reduces the overdetermined system A·x ≈ y to the square
// normal equations:
//
//	(AᵀA)·x = Aᵀy
//
// AᵀA is symmetric positive semi-definite by construction, which is what
// lets the solver treat it as a Hermitian operator later on.
func NormalEquations(A *mat.Dense, y *mat.VecDense) (*mat.SymDense, *mat.VecDense) {
	_, cols := A.Dims()

	var ata mat.Dense
	ata.Mul(A.T(), A)

	M := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			M.SetSym(i, j, ata.At(i, j))
		}
	}

	var aty mat.VecDense
	aty.MulVec(A.T(), y)

	return M, &aty
}

// NextPowerOfTwo returns the smallest power of two ≥ n. n ≤ 1 maps to 1.
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Pad embeds the m×m system into dimension dim. The new diagonal entries are
// 1 and the new right-hand side entries are 0, so the padded system is block
// diagonal and its leading block still solves to the original coefficients.
// If the system is already dim wide it is returned untouched.
func Pad(M *mat.SymDense, b *mat.VecDense, dim int) (*mat.SymDense, *mat.VecDense) {
	m := M.SymmetricDim()
	if m == dim {
		return M, b
	}

	padded := mat.NewSymDense(dim, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			padded.SetSym(i, j, M.At(i, j))
		}
	}
	for i := m; i < dim; i++ {
		padded.SetSym(i, i, 1)
	}

	rhs := mat.NewVecDense(dim, nil)
	for i := 0; i < m; i++ {
		rhs.SetVec(i, b.AtVec(i))
	}

	return padded, rhs
}

// ClassicalSolution solves M·x = b directly. Cholesky is tried first (the
// normal matrix should be positive definite); if the factorization fails the
// dense LU path is used so near-semi-definite systems still get an answer.
func ClassicalSolution(M *mat.SymDense, b *mat.VecDense) (*mat.VecDense, error) {
	var chol mat.Cholesky
	if chol.Factorize(M) {
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, b); err == nil {
			return &x, nil
		}
	}

	var lu mat.LU
	lu.Factorize(mat.DenseCopyOf(M))

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("normal matrix is singular: %w", err)
	}
	return &x, nil
}

// BuildProblem runs the full construction: design matrix, normal equations,
// padding to the next power of two.
func BuildProblem(points []domain.Point, opts Options) (*Problem, error) {
	if opts.Degree < 0 {
		return nil, fmt.Errorf("degree must be non-negative, got %d", opts.Degree)
	}

	dim := opts.Degree + 1
	if len(points) < dim {
		return nil, fmt.Errorf("need at least %d points for degree %d, got %d", dim, opts.Degree, len(points))
	}

	A := DesignMatrix(points, opts.Degree)
	y := mat.NewVecDense(len(points), nil)
	for i, p := range points {
		y.SetVec(i, p.Y)
	}

	M, b := NormalEquations(A, y)

	paddedDim := NextPowerOfTwo(dim)
	Mp, bp := Pad(M, b, paddedDim)

	labels := make([]string, paddedDim)
	for i := 0; i < paddedDim; i++ {
		if i < dim {
			labels[i] = fmt.Sprintf("c%d", i)
		} else {
			labels[i] = fmt.Sprintf("pad%d", i)
		}
	}

	return &Problem{
		Matrix:    Mp,
		RHS:       bp,
		Dim:       dim,
		PaddedDim: paddedDim,
		Labels:    labels,
	}, nil
}
