package bfcr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/basis-speech/internal/mathutil"
)

func sampled(n int, fn func(x float64) float64) []float64 {
	y := make([]float64, n)
	for i, x := range mathutil.Linspace(-1, 1, n) {
		y[i] = fn(x)
	}
	return y
}

func sqErr(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func TestFitLegendre_KnownCoefficients(t *testing.T) {
	// x^2 = 1/3 P0 + 2/3 P2
	y := sampled(21, func(x float64) float64 { return x * x })
	coef, err := FitLegendre(y, 3)
	require.NoError(t, err)
	want := []float64{1.0 / 3, 0, 2.0 / 3}
	for i := range want {
		assert.InDelta(t, want[i], coef[i], 1e-10, "coef[%d]", i)
	}
}

func TestFitLegendre_PolynomialRoundTrip(t *testing.T) {
	poly := func(x float64) float64 { return 0.5 - 2*x + 3*x*x - 0.75*x*x*x }
	for _, k := range []int{4, 5, 8} {
		y := sampled(30, poly)
		coef, err := FitLegendre(y, k)
		require.NoError(t, err)
		got := EvalLegendre(coef, len(y))
		for i := range y {
			assert.InDelta(t, y[i], got[i], 1e-9, "k=%d i=%d", k, i)
		}
	}
}

func TestFitLegendre_ErrorNonIncreasing(t *testing.T) {
	y := sampled(40, func(x float64) float64 { return math.Sin(3*x) + math.Exp(x) })
	prev := math.Inf(1)
	for k := 1; k <= 10; k++ {
		coef, err := FitLegendre(y, k)
		require.NoError(t, err)
		e := sqErr(y, EvalLegendre(coef, len(y)))
		assert.LessOrEqual(t, e, prev+1e-12, "k=%d", k)
		prev = e
	}
	assert.Less(t, prev, 1e-6)
}

func TestFitLegendre_ShortSegment(t *testing.T) {
	// Fewer samples than coefficients: the minimum-norm fit interpolates.
	for _, y := range [][]float64{{2.5}, {1, -1}, {0.2, 0.4, 0.1}} {
		coef, err := FitLegendre(y, 5)
		require.NoError(t, err)
		require.Len(t, coef, 5)
		got := EvalLegendre(coef, len(y))
		for i := range y {
			assert.InDelta(t, y[i], got[i], 1e-9)
		}
	}
}

func TestFitLegendre_Empty(t *testing.T) {
	coef, err := FitLegendre(nil, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, coef)
	assert.Empty(t, EvalLegendre(coef, 0))
}

func TestLegvanderCached(t *testing.T) {
	a := legvander(17, 5)
	b := legvander(17, 5)
	assert.Same(t, a, b)
	r, c := a.Dims()
	assert.Equal(t, 17, r)
	assert.Equal(t, 5, c)
	// P_j(1) = 1 and P_j(-1) = (-1)^j
	for j := 0; j < 5; j++ {
		assert.InDelta(t, 1.0, a.At(16, j), 1e-12)
		assert.InDelta(t, math.Pow(-1, float64(j)), a.At(0, j), 1e-12)
	}
}
