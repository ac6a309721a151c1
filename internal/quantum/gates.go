package quantum

import (
	"math"
	"math/cmplx"
)

// Single-qubit gate matrices, row-major [m00 m01 m10 m11].

func matH() [4]complex128 {
	h := complex(1.0/math.Sqrt2, 0)
	return [4]complex128{h, h, h, -h}
}

func matX() [4]complex128 {
	return [4]complex128{0, 1, 1, 0}
}

func matY() [4]complex128 {
	return [4]complex128{0, -1i, 1i, 0}
}

func matRX(theta float64) [4]complex128 {
	c := complex(math.Cos(theta/2), 0)
	js := complex(0, -math.Sin(theta/2))
	return [4]complex128{c, js, js, c}
}

func matRY(theta float64) [4]complex128 {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return [4]complex128{c, -s, s, c}
}

// Diagonal gates are cheaper applied as per-branch phase factors.
// phasePair returns (factor for bit=0, factor for bit=1).

func phasePairZ() (complex128, complex128)   { return 1, -1 }
func phasePairS() (complex128, complex128)   { return 1, 1i }
func phasePairSdg() (complex128, complex128) { return 1, -1i }

func phasePairT(dagger bool) (complex128, complex128) {
	sign := 1.0
	if dagger {
		sign = -1.0
	}
	return 1, cmplx.Exp(complex(0, sign*math.Pi/4))
}

func phasePairRZ(theta float64) (complex128, complex128) {
	p := cmplx.Exp(complex(0, theta/2))
	return cmplx.Conj(p), p
}

func phasePairP(theta float64) (complex128, complex128) {
	return 1, cmplx.Exp(complex(0, theta))
}
