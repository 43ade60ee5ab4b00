// Package regression provides baselines that map coded quin-phone contexts
// straight to coefficient vectors: ordinary least squares and a random
// forest. They exist to be compared against the backoff hierarchy.
package regression

import (
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/basis-speech/acoustic"
	"github.com/ieee0824/basis-speech/label"
)

// ErrInput is returned for inconsistent training input.
var ErrInput = errors.New("regression: invalid training input")

// NameLinear identifies the least-squares baseline.
const NameLinear = "LinearRegression"

// Regressor predicts a coefficient vector per phone context.
type Regressor interface {
	Name() string
	Dim() int
	Predict(contexts []label.Quinphone) [][]float64
	Save(w io.Writer) error
}

// numFeatures is the five coded context positions plus an intercept.
const numFeatures = 6

// rcond is the relative singular value cutoff for the least-squares solve.
const rcond = 1e-12

// Model is an ordinary least-squares fit from context codes to vectors.
type Model struct {
	coding *acoustic.PhoneCoding
	coef   *mat.Dense // numFeatures × dim
	dim    int
}

// Fit solves the least-squares problem X·B = Y where each row of X holds the
// coded context and a constant 1. Rank-deficient designs get the minimum-norm
// solution.
func Fit(contexts []label.Quinphone, rows [][]float64) (*Model, error) {
	if err := checkInput(contexts, rows); err != nil {
		return nil, err
	}
	dim := len(rows[0])
	coding := acoustic.CodingFromContexts(contexts)
	n := len(rows)
	x := mat.NewDense(n, numFeatures, nil)
	y := mat.NewDense(n, dim, nil)
	for i, q := range contexts {
		x.SetRow(i, features(coding, q))
		y.SetRow(i, rows[i])
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("regression: SVD did not converge")
	}
	var coef mat.Dense
	svd.SolveTo(&coef, y, svd.Rank(rcond))
	return &Model{coding: coding, coef: &coef, dim: dim}, nil
}

func checkInput(contexts []label.Quinphone, rows [][]float64) error {
	if len(contexts) != len(rows) {
		return fmt.Errorf("%w: %d contexts, %d rows", ErrInput, len(contexts), len(rows))
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: no training rows", ErrInput)
	}
	dim := len(rows[0])
	if dim == 0 {
		return fmt.Errorf("%w: empty rows", ErrInput)
	}
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has length %d, want %d", ErrInput, i, len(row), dim)
		}
	}
	return nil
}

func features(coding *acoustic.PhoneCoding, q label.Quinphone) []float64 {
	coded := coding.Encode(q)
	f := make([]float64, numFeatures)
	for i, c := range coded {
		f[i] = float64(c)
	}
	f[numFeatures-1] = 1
	return f
}

// Name returns NameLinear.
func (m *Model) Name() string { return NameLinear }

// Dim returns the predicted vector length.
func (m *Model) Dim() int { return m.dim }

// Predict returns one vector per context. Unknown symbols are coded as
// acoustic.Absent.
func (m *Model) Predict(contexts []label.Quinphone) [][]float64 {
	out := make([][]float64, len(contexts))
	for i, q := range contexts {
		var v mat.VecDense
		v.MulVec(m.coef.T(), mat.NewVecDense(numFeatures, features(m.coding, q)))
		out[i] = append([]float64(nil), v.RawVector().Data...)
	}
	return out
}
