// Package quantum provides the circuit model and pure-Go state-vector
// simulator that the local backend executes. Gate names follow OpenQASM
// conventions; any gate may carry extra control qubits.
package quantum

import (
	"fmt"
)

// Gate names understood by the simulator.
const (
	GateH       = "h"
	GateX       = "x"
	GateY       = "y"
	GateZ       = "z"
	GateS       = "s"
	GateSdg     = "sdg"
	GateT       = "t"
	GateTdg     = "tdg"
	GateRX      = "rx"
	GateRY      = "ry"
	GateRZ      = "rz"
	GateP       = "p"
	GateCX      = "cx"
	GateCZ      = "cz"
	GateSwap    = "swap"
	GateUnitary = "unitary"
)

// MaxQubits caps circuit width. 2^24 amplitudes is 256 MiB of complex128;
// anything wider does not belong on a state-vector simulator.
const MaxQubits = 24

// GateOp is a single circuit instruction.
//
// Qubits are the target qubits; Qubits[0] is the least significant bit of a
// multi-qubit operator's basis index. Controls may be attached to any gate
// and require all control bits set. Matrix is only used by "unitary" ops and
// holds a row-major 2^k x 2^k matrix for k targets.
type GateOp struct {
	Name     string       `json:"name"`
	Qubits   []int        `json:"qubits"`
	Controls []int        `json:"controls,omitempty"`
	Params   []float64    `json:"params,omitempty"`
	Matrix   []complex128 `json:"-"`
}

// Circuit is an ordered gate list over a fixed register width.
type Circuit struct {
	NumQubits int                    `json:"num_qubits"`
	Gates     []GateOp               `json:"gates"`
	Shots     int                    `json:"shots"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// paramCount maps gate names to their required parameter count.
var paramCount = map[string]int{
	GateH: 0, GateX: 0, GateY: 0, GateZ: 0,
	GateS: 0, GateSdg: 0, GateT: 0, GateTdg: 0,
	GateRX: 1, GateRY: 1, GateRZ: 1, GateP: 1,
	GateCX: 0, GateCZ: 0, GateSwap: 0,
}

// targetCount maps gate names to their required target count.
var targetCount = map[string]int{
	GateH: 1, GateX: 1, GateY: 1, GateZ: 1,
	GateS: 1, GateSdg: 1, GateT: 1, GateTdg: 1,
	GateRX: 1, GateRY: 1, GateRZ: 1, GateP: 1,
	GateCX: 2, GateCZ: 2, GateSwap: 2,
}

// Validate checks qubit indices, parameter counts and matrix dimensions.
func (c *Circuit) Validate() error {
	if c.NumQubits < 1 {
		return fmt.Errorf("circuit needs at least one qubit, got %d", c.NumQubits)
	}
	if c.NumQubits > MaxQubits {
		return fmt.Errorf("circuit width %d exceeds simulator limit %d", c.NumQubits, MaxQubits)
	}
	if c.Shots < 0 {
		return fmt.Errorf("negative shot count %d", c.Shots)
	}
	for i, op := range c.Gates {
		if err := c.validateOp(op); err != nil {
			return fmt.Errorf("gate %d (%s): %w", i, op.Name, err)
		}
	}
	return nil
}

func (c *Circuit) validateOp(op GateOp) error {
	if op.Name == GateUnitary {
		k := len(op.Qubits)
		if k < 1 {
			return fmt.Errorf("unitary op needs at least one target")
		}
		dim := 1 << k
		if len(op.Matrix) != dim*dim {
			return fmt.Errorf("unitary matrix must have %d entries for %d targets, got %d",
				dim*dim, k, len(op.Matrix))
		}
	} else {
		want, ok := targetCount[op.Name]
		if !ok {
			return fmt.Errorf("unknown gate")
		}
		if len(op.Qubits) != want {
			return fmt.Errorf("expected %d target(s), got %d", want, len(op.Qubits))
		}
		if got := len(op.Params); got != paramCount[op.Name] {
			return fmt.Errorf("expected %d parameter(s), got %d", paramCount[op.Name], got)
		}
	}

	seen := make(map[int]bool, len(op.Qubits)+len(op.Controls))
	for _, q := range append(append([]int{}, op.Qubits...), op.Controls...) {
		if q < 0 || q >= c.NumQubits {
			return fmt.Errorf("qubit %d out of range [0,%d)", q, c.NumQubits)
		}
		if seen[q] {
			return fmt.Errorf("qubit %d used more than once", q)
		}
		seen[q] = true
	}
	return nil
}

// Convenience constructors. The circuit builders in the fitting/HHL modules
// read much better with these than with struct literals.

// H returns a Hadamard on q.
func H(q int) GateOp { return GateOp{Name: GateH, Qubits: []int{q}} }

// X returns a Pauli-X on q.
func X(q int) GateOp { return GateOp{Name: GateX, Qubits: []int{q}} }

// RY returns an RY(theta) rotation on q.
func RY(q int, theta float64) GateOp {
	return GateOp{Name: GateRY, Qubits: []int{q}, Params: []float64{theta}}
}

// CRY returns an RY(theta) on target controlled by every qubit in controls.
func CRY(theta float64, target int, controls ...int) GateOp {
	return GateOp{Name: GateRY, Qubits: []int{target}, Params: []float64{theta}, Controls: controls}
}

// CX returns a CNOT with the given control and target.
func CX(control, target int) GateOp {
	return GateOp{Name: GateCX, Qubits: []int{control, target}}
}

// CP returns a controlled phase gate: |11> picks up e^{i theta}.
func CP(theta float64, control, target int) GateOp {
	return GateOp{Name: GateP, Qubits: []int{target}, Params: []float64{theta}, Controls: []int{control}}
}

// Swap returns a SWAP of a and b.
func Swap(a, b int) GateOp { return GateOp{Name: GateSwap, Qubits: []int{a, b}} }

// Unitary returns an arbitrary k-qubit operator. matrix is row-major
// 2^k x 2^k; qubits[0] is the least significant bit of the basis index.
func Unitary(matrix []complex128, qubits ...int) GateOp {
	return GateOp{Name: GateUnitary, Qubits: qubits, Matrix: matrix}
}

// ControlledUnitary returns Unitary(matrix, qubits...) gated on controls.
func ControlledUnitary(matrix []complex128, controls []int, qubits ...int) GateOp {
	op := Unitary(matrix, qubits...)
	op.Controls = controls
	return op
}

// FormatBitstring renders basis index i as an n-qubit measurement label,
// most significant qubit first (qubit n-1 is the leftmost character).
func FormatBitstring(i, n int) string {
	return fmt.Sprintf("%0*b", n, i)
}
