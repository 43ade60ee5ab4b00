// Package basis predicts spectral feature trajectories for phone sequences.
//
// Per-phone feature segments are compressed into fixed-size Legendre
// coefficient blocks (package bfcr). A quin → tri → single phone backoff
// hierarchy of Gaussian mixtures (package acoustic) is trained on those
// blocks and sampled for unseen utterances, which are then decoded back to
// frame-level features.
package basis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/ieee0824/basis-speech/acoustic"
	"github.com/ieee0824/basis-speech/bfcr"
	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/label"
	"github.com/ieee0824/basis-speech/prediction"
	"github.com/ieee0824/basis-speech/regression"
)

// ModelGMM names the hierarchy's output in predictions. Baselines are
// registered under their own Name.
const ModelGMM = "GMM"

// ErrNoBaseline is returned when baseline predictions are requested from a
// Synthesizer without baselines.
var ErrNoBaseline = errors.New("basis: no baseline model")

// TrainingSet collects per-phone contexts and coefficient rows.
type TrainingSet struct {
	Contexts []label.Quinphone
	Rows     [][]float64
}

// Add appends every phone of b's encoded feature name.
func (ts *TrainingSet) Add(b *bfcr.BFCR, name string) error {
	lab := b.Label()
	if lab == nil {
		return bfcr.ErrNotLoaded
	}
	rows, err := b.PhoneCoefficients(name)
	if err != nil {
		return err
	}
	ts.Contexts = append(ts.Contexts, lab.Contexts()...)
	ts.Rows = append(ts.Rows, rows...)
	return nil
}

// Len returns the number of phones collected.
func (ts *TrainingSet) Len() int { return len(ts.Rows) }

// TrainHierarchy builds and trains the backoff hierarchy on ts.
func TrainHierarchy(ctx context.Context, ts *TrainingSet, cfg Config, logger *slog.Logger) (*acoustic.Hierarchy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	h, err := acoustic.NewHierarchy(cfg.Shape(), ts.Contexts, ts.Rows, cfg.MinInstances)
	if err != nil {
		return nil, err
	}
	st := h.Stats()
	for _, level := range acoustic.Levels {
		logger.Info("context groups", "level", level.String(),
			"groups", st[level].Groups, "sparse", st[level].Sparse, "malformed", st[level].Malformed)
	}
	if err := h.Train(ctx, cfg.TrainConfig(logger)); err != nil {
		return nil, fmt.Errorf("train hierarchy: %w", err)
	}
	return h, nil
}

// TrainBaselines fits the linear-regression baseline and one random forest
// per cfg.ForestTrees entry on ts, in that order.
func TrainBaselines(ctx context.Context, ts *TrainingSet, cfg Config, logger *slog.Logger) ([]regression.Regressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	lr, err := regression.Fit(ts.Contexts, ts.Rows)
	if err != nil {
		return nil, err
	}
	out := []regression.Regressor{lr}
	for _, trees := range cfg.ForestTrees {
		f, err := regression.FitForest(ctx, ts.Contexts, ts.Rows, cfg.ForestConfig(trees))
		if err != nil {
			return nil, fmt.Errorf("train forest of %d trees: %w", trees, err)
		}
		logger.Info("baseline trained", "model", f.Name())
		out = append(out, f)
	}
	return out, nil
}

// Synthesizer turns labels into predicted feature matrices.
type Synthesizer struct {
	Model       *acoustic.Hierarchy
	Baselines   []regression.Regressor // optional, scored alongside Model
	FeatureName string
	BlendingMs  float64 // 0 disables blending
	FrameRate   float64
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithBaselines attaches regression baselines for comparison.
func WithBaselines(rs ...regression.Regressor) Option {
	return func(s *Synthesizer) {
		s.Baselines = append(s.Baselines, rs...)
	}
}

// WithBlending sets the boundary cross-fade half-window in milliseconds.
func WithBlending(ms float64) Option {
	return func(s *Synthesizer) {
		s.BlendingMs = ms
	}
}

// WithFrameRate sets the output frame rate.
func WithFrameRate(fps float64) Option {
	return func(s *Synthesizer) {
		s.FrameRate = fps
	}
}

// WithConfig applies the feature name, blending and frame rate of cfg.
func WithConfig(cfg Config) Option {
	return func(s *Synthesizer) {
		s.FeatureName = cfg.FeatureName
		s.BlendingMs = cfg.BlendingMs
		s.FrameRate = cfg.FrameRate
	}
}

// NewSynthesizer creates a Synthesizer around a trained hierarchy.
func NewSynthesizer(model *acoustic.Hierarchy, opts ...Option) *Synthesizer {
	def := DefaultConfig()
	s := &Synthesizer{
		Model:       model,
		FeatureName: def.FeatureName,
		BlendingMs:  def.BlendingMs,
		FrameRate:   def.FrameRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSynthesizer creates a Synthesizer from a saved hierarchy. A zero
// shape accepts any saved layout.
func LoadSynthesizer(modelPath string, shape acoustic.Shape, opts ...Option) (*Synthesizer, error) {
	f, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	h, err := acoustic.Load(f, shape)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return NewSynthesizer(h, opts...), nil
}

// Predict samples one coefficient block per phone of lab and decodes them
// into a feature matrix. A phone without a model at any level fails the
// whole utterance.
func (s *Synthesizer) Predict(lab *label.Label, src rand.Source) (*feature.Matrix, error) {
	rows, err := s.Model.Sample(lab.Contexts(), src)
	if err != nil {
		return nil, err
	}
	return s.decode(lab, rows)
}

// PredictBaselines decodes every baseline's coefficients for lab, in
// Baselines order.
func (s *Synthesizer) PredictBaselines(lab *label.Label) ([]prediction.Result, error) {
	if len(s.Baselines) == 0 {
		return nil, ErrNoBaseline
	}
	out := make([]prediction.Result, len(s.Baselines))
	for i, r := range s.Baselines {
		y, err := s.decode(lab, r.Predict(lab.Contexts()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name(), err)
		}
		out[i] = prediction.Result{Model: r.Name(), X: prediction.FramePositions(y.Rows), Y: y}
	}
	return out, nil
}

func (s *Synthesizer) decode(lab *label.Label, rows [][]float64) (*feature.Matrix, error) {
	shape := s.Model.Shape()
	b := bfcr.New(lab, bfcr.WithFrameRate(s.FrameRate))
	if err := b.SetEncoded(s.FeatureName, rows, shape.Components, shape.Bases); err != nil {
		return nil, err
	}
	if s.BlendingMs > 0 {
		return b.DecodeBlended(s.FeatureName, s.BlendingMs)
	}
	return b.Decode(s.FeatureName)
}

// Evaluate predicts name runs times and scores each run against original.
// The returned Prediction holds the last run's outputs; the scores are the
// per-model MSE averaged over runs. Baselines are deterministic and
// predicted once.
func (s *Synthesizer) Evaluate(name string, lab *label.Label, original *feature.Matrix, runs int, src rand.Source) (*prediction.Prediction, []prediction.Score, error) {
	if runs < 1 {
		runs = 1
	}
	p := prediction.New(name)
	if len(s.Baselines) > 0 {
		results, err := s.PredictBaselines(lab)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range results {
			p.Add(r.Model, r.X, r.Y)
		}
	}

	runErrors := make(map[string][]float64)
	for range runs {
		y, err := s.Predict(lab, src)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		p.Add(ModelGMM, prediction.FramePositions(y.Rows), y)
		scores, err := p.CalcError(original)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, sc := range scores {
			runErrors[sc.Model] = append(runErrors[sc.Model], sc.MSE)
		}
	}

	var scores []prediction.Score
	for _, m := range p.Models() {
		scores = append(scores, prediction.Score{Model: m, MSE: stat.Mean(runErrors[m], nil)})
	}
	return p, scores, nil
}
