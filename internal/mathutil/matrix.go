package mathutil

import "math"

// Linspace returns n evenly spaced values over [lo, hi], endpoints included.
// It matches numpy.linspace: n == 1 yields [lo], n <= 0 yields an empty slice.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// RoundIndex rounds x half-to-even and converts it to an int, the rounding
// used for every time-to-frame conversion.
func RoundIndex(x float64) int {
	return int(math.RoundToEven(x))
}

// ToFloat64 widens a float32 slice.
func ToFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// ToFloat32 narrows a float64 slice into dst, which must have len(src) elements.
func ToFloat32(dst []float32, src []float64) {
	for i, v := range src {
		dst[i] = float32(v)
	}
}
