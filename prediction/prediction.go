// Package prediction collects the outputs of several models for one
// utterance and scores them against the original features.
package prediction

import (
	"fmt"

	"github.com/viterin/vek/vek32"

	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/internal/mathutil"
)

// Result is one model's output for an utterance.
type Result struct {
	Model string
	X     []float64       // frame positions of Y's rows
	Y     *feature.Matrix // predicted features
}

// Score is one model's error against the original.
type Score struct {
	Model string
	MSE   float64
}

// Prediction aggregates model results for a single utterance. Models keep
// the order in which they were first added.
type Prediction struct {
	name    string
	order   []string
	results map[string]Result
}

// New creates an empty aggregator for the named utterance.
func New(name string) *Prediction {
	return &Prediction{name: name, results: make(map[string]Result)}
}

// Name returns the utterance name.
func (p *Prediction) Name() string { return p.name }

// Add registers y as model's prediction. Adding a model twice replaces its
// earlier result.
func (p *Prediction) Add(model string, x []float64, y *feature.Matrix) {
	if _, ok := p.results[model]; !ok {
		p.order = append(p.order, model)
	}
	p.results[model] = Result{Model: model, X: x, Y: y}
}

// Get returns the result registered for model.
func (p *Prediction) Get(model string) (Result, bool) {
	r, ok := p.results[model]
	return r, ok
}

// Models returns the registered model names.
func (p *Prediction) Models() []string {
	return append([]string(nil), p.order...)
}

// All returns every registered result.
func (p *Prediction) All() []Result {
	out := make([]Result, 0, len(p.order))
	for _, m := range p.order {
		out = append(out, p.results[m])
	}
	return out
}

// CalcError returns the mean squared error of every model against original.
func (p *Prediction) CalcError(original *feature.Matrix) ([]Score, error) {
	scores := make([]Score, 0, len(p.order))
	for _, m := range p.order {
		mse, err := MSE(original, p.results[m].Y)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m, err)
		}
		scores = append(scores, Score{Model: m, MSE: mse})
	}
	return scores, nil
}

// MSE is the mean squared difference over the first min(a.Rows, b.Rows)
// frames of a and b. Both must have the same number of components.
func MSE(a, b *feature.Matrix) (float64, error) {
	if a.Cols != b.Cols {
		return 0, fmt.Errorf("%w: %d vs %d components", feature.ErrShape, a.Cols, b.Cols)
	}
	rows := min(a.Rows, b.Rows)
	if rows == 0 || a.Cols == 0 {
		return 0, fmt.Errorf("%w: no overlapping frames", feature.ErrShape)
	}
	diff := vek32.Sub(a.Slice(rows).Data, b.Slice(rows).Data)
	return float64(vek32.Dot(diff, diff)) / float64(len(diff)), nil
}

// FramePositions returns n evenly spaced positions over [0, n], the x axis
// stored with every prediction.
func FramePositions(n int) []float64 {
	return mathutil.Linspace(0, float64(n), n)
}
