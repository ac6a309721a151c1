// Package hhl synthesizes quantum linear-system solver circuits and reads
// solutions back out of measurement counts.
//
// The circuit follows the standard phase-estimation construction:
//
//  1. Prepare the system register in |b⟩ (normalized right-hand side).
//  2. Quantum phase estimation of U = e^{iMt}: Hadamards on the clock
//     register, controlled-U^{2^j} powers, inverse QFT. A clock reading k
//     then encodes the eigenvalue estimate λ̃ = 2πk/(2^c·t), with k read as
//     a two's-complement integer so negative eigenvalues land in the upper
//     half of the register.
//  3. For every nonzero clock value, rotate the ancilla by
//     RY(2·asin(C/λ̃)), conditioning via X-sandwiched full controls. The
//     ancilla |1⟩ branch now carries amplitudes ∝ 1/λ̃.
//  4. Uncompute phase estimation so the clock returns to |0…0⟩ and the
//     system register disentangles into the solution state.
//
// Post-selecting ancilla=1 in the sampled counts leaves the system register
// distributed as |x_i|²/‖x‖².
package hhl

import (
	"errors"
	"fmt"
	"math"

	"github.com/qfitlab/qfit/internal/backends"
	"github.com/qfitlab/qfit/internal/modules/fitting"
	"github.com/qfitlab/qfit/internal/quantum"
	"gonum.org/v1/gonum/mat"
)

// ErrNoSuccessfulShots is returned when post-selection discards every shot:
// the ancilla never came up 1, so there is no solution sample to normalize.
var ErrNoSuccessfulShots = errors.New("no shots passed ancilla post-selection")

// Options parameterizes circuit synthesis. Zero values for EvolutionTime and
// RotationConstant mean "calibrate from the matrix spectrum".
type Options struct {
	ClockQubits      int     `json:"clock_qubits"`
	EvolutionTime    float64 `json:"evolution_time"`
	RotationConstant float64 `json:"rotation_constant"`
	Shots            int     `json:"shots"`
}

// Layout names the qubit indices of the three registers inside the
// synthesized circuit. System[0] is the least significant system bit.
type Layout struct {
	System  []int `json:"system"`
	Clock   []int `json:"clock"`
	Ancilla int   `json:"ancilla"`
}

// Solution is the measured estimate of the linear-system solution.
// Amplitudes are the non-negative |x_i| estimates of the renormalized
// solution direction; Counts are the post-selected system-register tallies.
type Solution struct {
	Amplitudes         []float64      `json:"amplitudes"`
	SuccessProbability float64        `json:"success_probability"`
	Counts             map[string]int `json:"counts"`
}

// BuildCircuit synthesizes the full solver circuit for a prepared problem.
// Options with zero EvolutionTime or RotationConstant are calibrated in
// place from the matrix spectrum first.
func BuildCircuit(p *fitting.Problem, opts Options) (*quantum.Circuit, Layout, error) {
	if p == nil {
		return nil, Layout{}, fmt.Errorf("nil problem")
	}
	if p.PaddedDim < 2 {
		return nil, Layout{}, fmt.Errorf("system dimension %d spans no qubits", p.PaddedDim)
	}

	if opts.EvolutionTime == 0 || opts.RotationConstant == 0 {
		if err := Calibrate(p.Matrix, &opts); err != nil {
			return nil, Layout{}, err
		}
	}
	if opts.ClockQubits < 1 {
		return nil, Layout{}, fmt.Errorf("clock register needs at least one qubit")
	}

	numSystem := 0
	for 1<<numSystem < p.PaddedDim {
		numSystem++
	}
	numClock := opts.ClockQubits

	width := numSystem + numClock + 1
	if width > quantum.MaxQubits {
		return nil, Layout{}, fmt.Errorf("circuit needs %d qubits, limit is %d", width, quantum.MaxQubits)
	}

	layout := Layout{
		System:  make([]int, numSystem),
		Clock:   make([]int, numClock),
		Ancilla: numSystem + numClock,
	}
	for i := range layout.System {
		layout.System[i] = i
	}
	for i := range layout.Clock {
		layout.Clock[i] = numSystem + i
	}

	amplitudes, err := normalizedRHS(p.RHS, p.PaddedDim)
	if err != nil {
		return nil, Layout{}, err
	}

	gates := statePreparationGates(amplitudes, layout.System)

	// Phase estimation.
	for _, q := range layout.Clock {
		gates = append(gates, quantum.H(q))
	}
	for j := 0; j < numClock; j++ {
		U, err := EvolutionOperator(p.Matrix, opts.EvolutionTime*float64(int(1)<<j))
		if err != nil {
			return nil, Layout{}, err
		}
		gates = append(gates, quantum.ControlledUnitary(U, []int{layout.Clock[j]}, layout.System...))
	}
	gates = append(gates, inverseQFTGates(layout.Clock)...)

	gates = append(gates, rotationGates(layout, opts)...)

	// Uncompute phase estimation.
	gates = append(gates, qftGates(layout.Clock)...)
	for j := numClock - 1; j >= 0; j-- {
		U, err := EvolutionOperator(p.Matrix, -opts.EvolutionTime*float64(int(1)<<j))
		if err != nil {
			return nil, Layout{}, err
		}
		gates = append(gates, quantum.ControlledUnitary(U, []int{layout.Clock[j]}, layout.System...))
	}
	for _, q := range layout.Clock {
		gates = append(gates, quantum.H(q))
	}

	circuit := &quantum.Circuit{
		NumQubits: width,
		Gates:     gates,
		Shots:     opts.Shots,
		Metadata: map[string]interface{}{
			"clock_qubits":      opts.ClockQubits,
			"evolution_time":    opts.EvolutionTime,
			"rotation_constant": opts.RotationConstant,
			"system_dim":        p.PaddedDim,
		},
	}
	if err := circuit.Validate(); err != nil {
		return nil, Layout{}, err
	}
	return circuit, layout, nil
}

// normalizedRHS returns b/‖b‖ as a dense amplitude vector.
func normalizedRHS(b *mat.VecDense, dim int) ([]float64, error) {
	norm := mat.Norm(b, 2)
	if norm == 0 {
		return nil, fmt.Errorf("right-hand side has zero norm")
	}
	v := make([]float64, dim)
	for i := 0; i < dim; i++ {
		v[i] = b.AtVec(i) / norm
	}
	return v, nil
}

// statePreparationGates prepares the real amplitude vector v on the given
// qubits with a binary tree of (controlled) RY rotations. Interior tree
// nodes hold subtree norms; leaf-level angles use the signed amplitudes, so
// negative right-hand sides come out with the right relative signs.
func statePreparationGates(v []float64, system []int) []quantum.GateOp {
	s := len(system)

	// values[l][m]: norm of the 2^(s-l)-wide amplitude block m at depth l.
	values := make([][]float64, s+1)
	values[s] = v
	for l := s - 1; l >= 0; l-- {
		values[l] = make([]float64, 1<<l)
		for m := range values[l] {
			values[l][m] = math.Hypot(values[l+1][2*m], values[l+1][2*m+1])
		}
	}

	var gates []quantum.GateOp
	for l := 0; l < s; l++ {
		for m := 0; m < 1<<l; m++ {
			if values[l][m] < 1e-15 {
				// Empty subtree, nothing to distribute.
				continue
			}
			theta := 2 * math.Atan2(values[l+1][2*m+1], values[l+1][2*m])
			target := system[s-1-l]

			if l == 0 {
				gates = append(gates, quantum.RY(target, theta))
				continue
			}

			controls := make([]int, 0, l)
			var flips []quantum.GateOp
			for j := 0; j < l; j++ {
				cq := system[s-1-j]
				controls = append(controls, cq)
				if m&(1<<(l-1-j)) == 0 {
					flips = append(flips, quantum.X(cq))
				}
			}
			gates = append(gates, flips...)
			gates = append(gates, quantum.CRY(theta, target, controls...))
			gates = append(gates, flips...)
		}
	}
	return gates
}

// qftGates is the quantum Fourier transform over the given qubits, where
// qubits[j] carries weight 2^j of the register value.
func qftGates(qubits []int) []quantum.GateOp {
	n := len(qubits)
	var gates []quantum.GateOp
	for i := n - 1; i >= 0; i-- {
		gates = append(gates, quantum.H(qubits[i]))
		for j := i - 1; j >= 0; j-- {
			angle := math.Pi / float64(int(1)<<(i-j))
			gates = append(gates, quantum.CP(angle, qubits[j], qubits[i]))
		}
	}
	for i := 0; i < n/2; i++ {
		gates = append(gates, quantum.Swap(qubits[i], qubits[n-1-i]))
	}
	return gates
}

// inverseQFTGates reverses qftGates with negated phases.
func inverseQFTGates(qubits []int) []quantum.GateOp {
	forward := qftGates(qubits)
	gates := make([]quantum.GateOp, 0, len(forward))
	for i := len(forward) - 1; i >= 0; i-- {
		g := forward[i]
		if g.Name == quantum.GateP {
			g = quantum.GateOp{Name: g.Name, Qubits: g.Qubits, Controls: g.Controls, Params: []float64{-g.Params[0]}}
		}
		gates = append(gates, g)
	}
	return gates
}

// rotationGates emits the eigenvalue-conditioned ancilla rotation for every
// nonzero clock value: RY(2·asin(C/λ̃(k))) fully controlled on the clock
// reading k, with X gates flipping the zero bits of k around each rotation.
func rotationGates(layout Layout, opts Options) []quantum.GateOp {
	numClock := len(layout.Clock)
	size := 1 << numClock

	var gates []quantum.GateOp
	for k := 1; k < size; k++ {
		lambda := eigenvalueForReading(k, numClock, opts.EvolutionTime)
		ratio := opts.RotationConstant / lambda
		if ratio > 1 {
			ratio = 1
		} else if ratio < -1 {
			ratio = -1
		}
		theta := 2 * math.Asin(ratio)

		var flips []quantum.GateOp
		for j, q := range layout.Clock {
			if k&(1<<j) == 0 {
				flips = append(flips, quantum.X(q))
			}
		}
		gates = append(gates, flips...)
		gates = append(gates, quantum.CRY(theta, layout.Ancilla, layout.Clock...))
		gates = append(gates, flips...)
	}
	return gates
}

// signedReading interprets a clock value as a two's-complement integer.
func signedReading(k, numClock int) int {
	if k >= 1<<(numClock-1) {
		return k - 1<<numClock
	}
	return k
}

// eigenvalueForReading maps a clock reading back to the eigenvalue estimate
// λ̃ = 2π·k_signed / (2^c · t).
func eigenvalueForReading(k, numClock int, t float64) float64 {
	return 2 * math.Pi * float64(signedReading(k, numClock)) / (float64(int(1)<<numClock) * t)
}

// ExtractSolution post-selects ancilla=1 shots, marginalizes the clock
// register and renormalizes the system-register distribution. The returned
// amplitudes are |x_i| estimates for the first dim basis states; signs are
// not observable in counts and are supplied by the classical reference
// solve downstream.
func ExtractSolution(res *backends.ExecutionResult, layout Layout, dim int) (*Solution, error) {
	if res == nil {
		return nil, fmt.Errorf("nil execution result")
	}
	if dim < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}

	width := res.NumQubits
	numSystem := len(layout.System)
	sysCounts := make([]int, 1<<numSystem)

	total := 0
	selected := 0
	for bitstring, count := range res.Counts {
		if len(bitstring) != width {
			return nil, fmt.Errorf("bitstring %q does not match register width %d", bitstring, width)
		}
		total += count

		if bitstring[width-1-layout.Ancilla] != '1' {
			continue
		}
		selected += count

		value := 0
		for j, q := range layout.System {
			if bitstring[width-1-q] == '1' {
				value |= 1 << j
			}
		}
		sysCounts[value] += count
	}

	if total == 0 {
		return nil, fmt.Errorf("execution result carries no shots")
	}
	if selected == 0 {
		return nil, ErrNoSuccessfulShots
	}

	amplitudes := make([]float64, dim)
	for i := 0; i < dim && i < len(sysCounts); i++ {
		amplitudes[i] = math.Sqrt(float64(sysCounts[i]) / float64(selected))
	}

	counts := make(map[string]int)
	for value, count := range sysCounts {
		if count > 0 {
			counts[quantum.FormatBitstring(value, numSystem)] = count
		}
	}

	return &Solution{
		Amplitudes:         amplitudes,
		SuccessProbability: float64(selected) / float64(total),
		Counts:             counts,
	}, nil
}
