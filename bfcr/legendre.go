package bfcr

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/basis-speech/internal/mathutil"
)

// basisCacheSize bounds the number of (length, order) Vandermonde matrices
// kept around. Segment lengths cluster tightly, so a few hundred covers a corpus.
const basisCacheSize = 512

type basisKey struct {
	n, k int
}

var basisCache, _ = lru.New[basisKey, *mat.Dense](basisCacheSize)

// legvander returns the n x k Legendre-Vandermonde matrix V[i][j] = P_j(x_i)
// sampled at n evenly spaced points over [-1, 1]. The result is shared and
// must not be modified. n and k must be positive.
func legvander(n, k int) *mat.Dense {
	key := basisKey{n, k}
	if v, ok := basisCache.Get(key); ok {
		return v
	}
	x := mathutil.Linspace(-1, 1, n)
	v := mat.NewDense(n, k, nil)
	for i, xi := range x {
		// Bonnet recursion: j P_j = (2j-1) x P_{j-1} - (j-1) P_{j-2}
		p0, p1 := 1.0, xi
		v.Set(i, 0, p0)
		if k > 1 {
			v.Set(i, 1, p1)
		}
		for j := 2; j < k; j++ {
			p := (float64(2*j-1)*xi*p1 - float64(j-1)*p0) / float64(j)
			v.Set(i, j, p)
			p0, p1 = p1, p
		}
	}
	basisCache.Add(key, v)
	return v
}

// fitSegment solves the least-squares problem V X = Y where Y is the n x d
// block of frames and V the n x k Legendre basis. The k x d solution holds
// one coefficient column per component. Short segments (n < k) get the
// minimum-norm solution.
func fitSegment(y *mat.Dense, k int) (*mat.Dense, error) {
	n, _ := y.Dims()
	var x mat.Dense
	err := x.Solve(legvander(n, k), y)
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return nil, err
	}
	return &x, nil
}

// evalSegment evaluates the k x d coefficient block at n evenly spaced points
// over [-1, 1] and returns the n x d result.
func evalSegment(coef mat.Matrix, n int) *mat.Dense {
	k, d := coef.Dims()
	out := mat.NewDense(n, d, nil)
	out.Mul(legvander(n, k), coef)
	return out
}

// FitLegendre fits k Legendre coefficients to y sampled evenly over [-1, 1].
// An empty y yields zero coefficients.
func FitLegendre(y []float64, k int) ([]float64, error) {
	coef := make([]float64, k)
	if len(y) == 0 {
		return coef, nil
	}
	x, err := fitSegment(mat.NewDense(len(y), 1, append([]float64(nil), y...)), k)
	if err != nil {
		return nil, err
	}
	for j := range coef {
		coef[j] = x.At(j, 0)
	}
	return coef, nil
}

// EvalLegendre evaluates the Legendre series coef at n evenly spaced points
// over [-1, 1].
func EvalLegendre(coef []float64, n int) []float64 {
	if n <= 0 || len(coef) == 0 {
		return make([]float64, max(n, 0))
	}
	c := mat.NewDense(len(coef), 1, append([]float64(nil), coef...))
	out := evalSegment(c, n)
	return mat.Col(nil, 0, out)
}
