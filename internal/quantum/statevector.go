package quantum

import (
	"fmt"
	"math"
	"math/cmplx"
)

// StateVector holds the full 2^n amplitude vector of an n-qubit register.
// Qubit 0 is the least significant bit of the basis index.
type StateVector struct {
	numQubits int
	amps      []complex128
}

// NewStateVector returns |0...0> on n qubits.
func NewStateVector(n int) (*StateVector, error) {
	if n < 1 || n > MaxQubits {
		return nil, fmt.Errorf("qubit count %d outside supported range [1,%d]", n, MaxQubits)
	}
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &StateVector{numQubits: n, amps: amps}, nil
}

// NumQubits returns the register width.
func (s *StateVector) NumQubits() int { return s.numQubits }

// Amplitudes returns a copy of the amplitude vector.
func (s *StateVector) Amplitudes() []complex128 {
	out := make([]complex128, len(s.amps))
	copy(out, s.amps)
	return out
}

// Probabilities returns the Born-rule distribution over basis states.
func (s *StateVector) Probabilities() []float64 {
	probs := make([]float64, len(s.amps))
	for i, a := range s.amps {
		probs[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return probs
}

// Norm returns the l2 norm of the state. Stays 1 up to rounding for any
// sequence of valid gates.
func (s *StateVector) Norm() float64 {
	sum := 0.0
	for _, a := range s.amps {
		sum += real(a)*real(a) + imag(a)*imag(a)
	}
	return math.Sqrt(sum)
}

// controlMask folds a control list into a bitmask.
func controlMask(controls []int) int {
	mask := 0
	for _, c := range controls {
		mask |= 1 << c
	}
	return mask
}

// Apply executes one gate on the state. The op must already be valid for
// this register width (Circuit.Validate or Run take care of that).
func (s *StateVector) Apply(op GateOp) error {
	cm := controlMask(op.Controls)

	switch op.Name {
	case GateH:
		s.apply1Q(matH(), op.Qubits[0], cm)
	case GateX:
		s.apply1Q(matX(), op.Qubits[0], cm)
	case GateY:
		s.apply1Q(matY(), op.Qubits[0], cm)
	case GateRX:
		s.apply1Q(matRX(op.Params[0]), op.Qubits[0], cm)
	case GateRY:
		s.apply1Q(matRY(op.Params[0]), op.Qubits[0], cm)
	case GateZ:
		f0, f1 := phasePairZ()
		s.applyPhase(f0, f1, op.Qubits[0], cm)
	case GateS:
		f0, f1 := phasePairS()
		s.applyPhase(f0, f1, op.Qubits[0], cm)
	case GateSdg:
		f0, f1 := phasePairSdg()
		s.applyPhase(f0, f1, op.Qubits[0], cm)
	case GateT:
		f0, f1 := phasePairT(false)
		s.applyPhase(f0, f1, op.Qubits[0], cm)
	case GateTdg:
		f0, f1 := phasePairT(true)
		s.applyPhase(f0, f1, op.Qubits[0], cm)
	case GateRZ:
		f0, f1 := phasePairRZ(op.Params[0])
		s.applyPhase(f0, f1, op.Qubits[0], cm)
	case GateP:
		f0, f1 := phasePairP(op.Params[0])
		s.applyPhase(f0, f1, op.Qubits[0], cm)
	case GateCX:
		s.apply1Q(matX(), op.Qubits[1], cm|1<<op.Qubits[0])
	case GateCZ:
		f0, f1 := phasePairZ()
		s.applyPhase(f0, f1, op.Qubits[1], cm|1<<op.Qubits[0])
	case GateSwap:
		s.applySwap(op.Qubits[0], op.Qubits[1], cm)
	case GateUnitary:
		s.applyUnitary(op.Matrix, op.Qubits, cm)
	default:
		return fmt.Errorf("unknown gate %q", op.Name)
	}
	return nil
}

// apply1Q applies a single-qubit matrix to target under a control mask.
// Each |i>,|i+bit> pair is visited exactly once, so the update is in place.
func (s *StateVector) apply1Q(m [4]complex128, target, cm int) {
	bit := 1 << target
	for i := range s.amps {
		if i&bit == 0 && i&cm == cm {
			j := i | bit
			a0, a1 := s.amps[i], s.amps[j]
			s.amps[i] = m[0]*a0 + m[1]*a1
			s.amps[j] = m[2]*a0 + m[3]*a1
		}
	}
}

// applyPhase multiplies the two branches of target by per-branch factors.
func (s *StateVector) applyPhase(f0, f1 complex128, target, cm int) {
	bit := 1 << target
	for i := range s.amps {
		if i&cm != cm {
			continue
		}
		if i&bit != 0 {
			s.amps[i] *= f1
		} else if f0 != 1 {
			s.amps[i] *= f0
		}
	}
}

func (s *StateVector) applySwap(a, b, cm int) {
	bitA := 1 << a
	bitB := 1 << b
	for i := range s.amps {
		if i&bitA != 0 && i&bitB == 0 && i&cm == cm {
			j := (i &^ bitA) | bitB
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

// applyUnitary applies a row-major 2^k x 2^k matrix across k target qubits
// under a control mask. targets[0] is the least significant bit of the
// operator's basis index.
func (s *StateVector) applyUnitary(matrix []complex128, targets []int, cm int) {
	k := len(targets)
	dim := 1 << k

	tmask := 0
	for _, t := range targets {
		tmask |= 1 << t
	}

	// spread maps sub-index bit b onto full-register bit targets[b].
	spread := func(p int) int {
		full := 0
		for b := 0; b < k; b++ {
			if p&(1<<b) != 0 {
				full |= 1 << targets[b]
			}
		}
		return full
	}
	offsets := make([]int, dim)
	for p := 0; p < dim; p++ {
		offsets[p] = spread(p)
	}

	vec := make([]complex128, dim)
	for base := range s.amps {
		if base&tmask != 0 || base&cm != cm {
			continue
		}
		for p := 0; p < dim; p++ {
			vec[p] = s.amps[base|offsets[p]]
		}
		for r := 0; r < dim; r++ {
			var sum complex128
			row := matrix[r*dim:]
			for c := 0; c < dim; c++ {
				sum += row[c] * vec[c]
			}
			s.amps[base|offsets[r]] = sum
		}
	}
}

// Run validates the circuit and applies every gate to a fresh register.
func Run(c *Circuit) (*StateVector, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit: %w", err)
	}
	state, err := NewStateVector(c.NumQubits)
	if err != nil {
		return nil, err
	}
	for i, op := range c.Gates {
		if err := state.Apply(op); err != nil {
			return nil, fmt.Errorf("gate %d: %w", i, err)
		}
	}
	return state, nil
}

// Phase returns the complex phase of a basis amplitude, for debugging and
// the dashboard's amplitude view.
func (s *StateVector) Phase(i int) float64 {
	return cmplx.Phase(s.amps[i])
}
