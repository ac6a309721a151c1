package hhl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const defaultClockQubits = 3

// Calibrate fills the zero-valued circuit parameters from the matrix
// spectrum, in place.
//
// Evolution time: the largest eigenvalue magnitude should land near the top
// of the positive clock range, k_top = 2^(c-1)−1, so readings use the full
// two's-complement window without aliasing:
//
//	t₀ = 2π·k_top / (2^c · max|λ|)
//
// The heuristic is then refined with Nelder-Mead, minimizing the total
// squared inversion error Σ(1/λ̃ − 1/λ)² over the true spectrum on the clock
// grid. Rotation constant: the smallest eigenvalue magnitude the clock can
// express, C = 2π/(2^c·t), which keeps every asin argument in domain and
// maximizes success probability.
func Calibrate(M *mat.SymDense, opts *Options) error {
	if opts == nil {
		return fmt.Errorf("nil options")
	}
	if opts.ClockQubits <= 0 {
		opts.ClockQubits = defaultClockQubits
	}

	vals, err := eigenvalues(M)
	if err != nil {
		return err
	}

	maxAbs := 0.0
	for _, v := range vals {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
	}
	if maxAbs == 0 {
		return fmt.Errorf("matrix has an empty spectrum, nothing to invert")
	}

	grid := 1 << opts.ClockQubits
	top := grid/2 - 1
	if top < 1 {
		top = 1
	}

	if opts.EvolutionTime == 0 {
		t0 := 2 * math.Pi * float64(top) / (float64(grid) * maxAbs)
		opts.EvolutionTime = refineEvolutionTime(vals, opts.ClockQubits, t0)
	}
	if opts.RotationConstant == 0 {
		opts.RotationConstant = 2 * math.Pi / (float64(grid) * opts.EvolutionTime)
	}
	return nil
}

// refineEvolutionTime polishes the heuristic evolution time with
// Nelder-Mead. The refined value is only adopted when it actually lowers the
// inversion error and keeps every eigenvalue on the clock grid.
func refineEvolutionTime(eigenvalues []float64, clockQubits int, t0 float64) float64 {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return inversionError(eigenvalues, clockQubits, x[0])
		},
	}

	result, err := optimize.Minimize(problem, []float64{t0}, &optimize.Settings{}, &optimize.NelderMead{})
	if err != nil {
		return t0
	}

	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}
	if !successStatuses[result.Status] {
		return t0
	}

	refined := result.X[0]
	if refined <= 0 || math.IsInf(inversionError(eigenvalues, clockQubits, refined), 1) {
		return t0
	}
	if inversionError(eigenvalues, clockQubits, refined) < inversionError(eigenvalues, clockQubits, t0) {
		return refined
	}
	return t0
}

// inversionError measures how badly the clock grid at evolution time t
// reproduces 1/λ across the spectrum. Readings that alias outside the
// two's-complement window make t unusable; eigenvalues rounding to reading 0
// are filtered by the solver and count as a full miss.
func inversionError(eigenvalues []float64, clockQubits int, t float64) float64 {
	if t <= 0 {
		return math.Inf(1)
	}
	grid := 1 << clockQubits
	half := grid / 2

	var total float64
	for _, lambda := range eigenvalues {
		if lambda == 0 {
			continue
		}
		reading := int(math.Round(lambda * t * float64(grid) / (2 * math.Pi)))
		if reading > half-1 || reading < -half {
			return math.Inf(1)
		}
		if reading == 0 {
			total += 1 / (lambda * lambda)
			continue
		}
		estimate := 2 * math.Pi * float64(reading) / (float64(grid) * t)
		diff := 1/estimate - 1/lambda
		total += diff * diff
	}
	return total
}
