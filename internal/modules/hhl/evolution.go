package hhl

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// EvolutionOperator computes the Hamiltonian simulation unitary e^{iMt} for
// a symmetric matrix M via its eigendecomposition:
//
//	e^{iMt} = V · diag(e^{iλ_m t}) · Vᵀ
//
// The result is returned flattened row-major, ready to be carried by a
// unitary gate op. Symmetry of M makes the operator exactly unitary up to
// floating-point rounding.
func EvolutionOperator(M *mat.SymDense, t float64) ([]complex128, error) {
	var es mat.EigenSym
	if !es.Factorize(M, true) {
		return nil, fmt.Errorf("eigendecomposition of the system matrix failed")
	}

	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	n := len(vals)
	phases := make([]complex128, n)
	for m, lambda := range vals {
		phases[m] = cmplx.Exp(complex(0, lambda*t))
	}

	U := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum complex128
			for m := 0; m < n; m++ {
				sum += complex(vecs.At(i, m), 0) * phases[m] * complex(vecs.At(j, m), 0)
			}
			U[i*n+j] = sum
		}
	}
	return U, nil
}

// eigenvalues returns the spectrum of M in ascending order.
func eigenvalues(M *mat.SymDense) ([]float64, error) {
	var es mat.EigenSym
	if !es.Factorize(M, false) {
		return nil, fmt.Errorf("eigendecomposition of the system matrix failed")
	}
	return es.Values(nil), nil
}
