// Package evaluation scores a sampled quantum solution against the classical
// reference solve of the same linear system.
package evaluation

import (
	"fmt"
	"math"

	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/modules/fitting"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Input bundles everything one evaluation needs.
type Input struct {
	// Problem is the padded system the circuit solved.
	Problem *fitting.Problem

	// Quantum holds the measured |x_i| estimates for the leading entries.
	// Overall scale does not matter: fidelity and the residual both
	// normalize before comparing.
	Quantum []float64

	// Classical is the reference solution of the padded system.
	Classical *mat.VecDense

	// Counts are the raw full-register tallies; Exact is the backend's exact
	// outcome distribution when it reported one.
	Counts map[string]int
	Exact  map[string]float64

	SuccessProbability float64
	Shots              int
}

// Evaluate produces the comparison report.
//
//   - Fidelity: squared normalized overlap ⟨|x̂|,|x|⟩² between the measured
//     direction and the classical one.
//   - TotalVariation: ½·Σ|empirical − exact| over measurement outcomes, nil
//     when the backend gave no exact distribution.
//   - ResidualNorm: ‖M·x̂ − b‖₂ with x̂ carrying classical signs and scaled to
//     the classical norm.
//
// A zero classical solution cannot anchor any of this; it yields a zero
// report and an error.
func Evaluate(in Input) (domain.EvaluationReport, error) {
	report := domain.EvaluationReport{
		SuccessProbability: in.SuccessProbability,
		ShotsUsed:          in.Shots,
	}

	classicalNorm := mat.Norm(in.Classical, 2)
	if classicalNorm == 0 {
		return report, fmt.Errorf("classical solution has zero norm, nothing to compare against")
	}

	report.Fidelity = fidelity(in.Quantum, in.Classical, classicalNorm)
	report.TotalVariation = totalVariation(in.Counts, in.Exact, in.Shots)
	report.ResidualNorm = residualNorm(in.Problem, in.Quantum, in.Classical, classicalNorm)

	return report, nil
}

// fidelity computes (Σ q_i·|c_i|)² / (‖q‖²·‖c‖²). Quantum amplitudes are
// non-negative, so the classical entries enter by magnitude.
func fidelity(quantum []float64, classical *mat.VecDense, classicalNorm float64) float64 {
	qNorm := floats.Norm(quantum, 2)
	if qNorm == 0 {
		return 0
	}

	dot := 0.0
	for i, q := range quantum {
		if i >= classical.Len() {
			break
		}
		dot += q * math.Abs(classical.AtVec(i))
	}

	overlap := dot / (qNorm * classicalNorm)
	return overlap * overlap
}

// totalVariation compares the empirical shot distribution to the exact one
// over the union of outcomes.
func totalVariation(counts map[string]int, exact map[string]float64, shots int) *float64 {
	if len(exact) == 0 || shots <= 0 {
		return nil
	}

	var tv float64
	for outcome, count := range counts {
		tv += math.Abs(float64(count)/float64(shots) - exact[outcome])
	}
	for outcome, p := range exact {
		if _, seen := counts[outcome]; !seen {
			tv += p
		}
	}
	tv /= 2

	return &tv
}

// residualNorm rebuilds a signed, scaled solution estimate and measures how
// well it actually solves the padded system.
func residualNorm(p *fitting.Problem, quantum []float64, classical *mat.VecDense, classicalNorm float64) float64 {
	qNorm := floats.Norm(quantum, 2)

	xhat := mat.NewVecDense(p.PaddedDim, nil)
	for i := 0; i < p.PaddedDim && qNorm > 0; i++ {
		if i >= len(quantum) {
			break
		}
		sign := 1.0
		if i < classical.Len() && classical.AtVec(i) < 0 {
			sign = -1.0
		}
		xhat.SetVec(i, sign*quantum[i]/qNorm*classicalNorm)
	}

	var r mat.VecDense
	r.MulVec(p.Matrix, xhat)
	r.SubVec(&r, p.RHS)
	return mat.Norm(&r, 2)
}
