package mathx

import "golang.org/x/exp/constraints"

// Rescale maps v in [0, fromMax] onto [0, toMax] with 64-bit intermediates.
// v is clamped to fromMax first; fromMax == 0 yields 0.
func Rescale[T, U constraints.Unsigned](v, fromMax T, toMax U) U {
	if fromMax == 0 {
		return 0
	}
	if v > fromMax {
		v = fromMax
	}
	return U(uint64(v) * uint64(toMax) / uint64(fromMax))
}
