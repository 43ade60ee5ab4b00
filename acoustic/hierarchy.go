package acoustic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ieee0824/basis-speech/label"
)

var (
	// ErrLookupGap is returned when no level has a model for a context.
	ErrLookupGap = errors.New("acoustic: no model for context at any level")
	// ErrNotTrained is returned when sampling or saving an untrained hierarchy.
	ErrNotTrained = errors.New("acoustic: hierarchy not trained")
	// ErrInput is returned for inconsistent training input.
	ErrInput = errors.New("acoustic: invalid training input")
)

// DefaultMinInstances is the smallest group kept at the tri and quin levels.
const DefaultMinInstances = 3

// TrainConfig holds hierarchy training parameters.
type TrainConfig struct {
	Fit     FitConfig
	Workers int    // concurrent fits; <= 0 means runtime.NumCPU()
	Seed    uint64 // 0 picks a time based seed
	Logger  *slog.Logger
}

// DefaultTrainConfig returns the standard training setup.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Fit:     DefaultFitConfig(),
		Workers: runtime.NumCPU(),
	}
}

// Shape is the coefficient layout modelled per phone: Components × Bases values.
type Shape struct {
	Components int
	Bases      int
}

// Dim returns the flattened vector length.
func (s Shape) Dim() int { return s.Components * s.Bases }

// LevelStats counts groups at one level.
type LevelStats struct {
	Groups    int // distinct keys seen in training data
	Sparse    int // dropped below MinInstances
	Malformed int // tri/quin: groups dropped for a row of the wrong length; single: rows dropped
	Models    int // fitted
}

// Stats summarizes a hierarchy per level, indexed by Level.
type Stats [numLevels]LevelStats

// Hierarchy holds per-level context models with quin → tri → single backoff.
// A trained Hierarchy is read-only and safe for concurrent sampling.
type Hierarchy struct {
	shape        Shape
	coding       *PhoneCoding
	minInstances int

	groups [numLevels]map[ContextKey][][]float64
	models [numLevels]map[ContextKey]*GMM
	stats  Stats
}

// NewHierarchy groups the training rows by context key at every level.
// rows[i] is the flattened coefficient vector of the phone whose context is
// contexts[i]. At the tri and quin levels, a group containing a row whose
// length differs from shape.Dim() is dropped, as is a group with fewer than
// minInstances rows. At the single level only the bad rows are dropped and a
// group of any size is kept, so the last level covers every phone with at
// least one usable row.
func NewHierarchy(shape Shape, contexts []label.Quinphone, rows [][]float64, minInstances int) (*Hierarchy, error) {
	if shape.Components < 1 || shape.Bases < 1 {
		return nil, fmt.Errorf("%w: shape %dx%d", ErrInput, shape.Components, shape.Bases)
	}
	if len(contexts) != len(rows) {
		return nil, fmt.Errorf("%w: %d contexts, %d rows", ErrInput, len(contexts), len(rows))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no training rows", ErrInput)
	}
	if minInstances < 1 {
		minInstances = 1
	}
	h := &Hierarchy{
		shape:        shape,
		coding:       CodingFromContexts(contexts),
		minInstances: minInstances,
	}

	dim := shape.Dim()
	for _, level := range Levels {
		st := &h.stats[level]
		groups := make(map[ContextKey][][]float64)
		malformed := make(map[ContextKey]bool)
		for i, q := range contexts {
			key := level.Key(h.coding.Encode(q))
			if len(rows[i]) != dim {
				if level == LevelSingle {
					st.Malformed++
					if _, ok := groups[key]; !ok {
						groups[key] = nil
					}
					continue
				}
				malformed[key] = true
			}
			groups[key] = append(groups[key], rows[i])
		}
		st.Groups = len(groups)
		for key, g := range groups {
			switch {
			case malformed[key]:
				st.Malformed++
				delete(groups, key)
			case len(g) == 0:
				delete(groups, key)
			case level != LevelSingle && len(g) < minInstances:
				st.Sparse++
				delete(groups, key)
			}
		}
		h.groups[level] = groups
	}
	return h, nil
}

// Shape returns the modelled coefficient layout.
func (h *Hierarchy) Shape() Shape { return h.shape }

// Coding returns the phone coding table.
func (h *Hierarchy) Coding() *PhoneCoding { return h.coding }

// Stats returns per-level group counts.
func (h *Hierarchy) Stats() Stats { return h.stats }

// Trained reports whether models are available.
func (h *Hierarchy) Trained() bool { return h.models[LevelSingle] != nil }

type fitTask struct {
	level Level
	key   ContextKey
	rows  [][]float64
}

// Train fits one GMM per retained group. Fits run concurrently, bounded by
// cfg.Workers. Each fit draws from its own generator seeded by cfg.Seed and
// the task's position in key order, so results are reproducible for a fixed
// seed. The training rows are released once all fits succeed.
func (h *Hierarchy) Train(ctx context.Context, cfg TrainConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if h.groups[LevelSingle] == nil {
		return fmt.Errorf("%w: no grouped training data", ErrNotTrained)
	}

	var tasks []fitTask
	for _, level := range Levels {
		keys := make([]ContextKey, 0, len(h.groups[level]))
		for key := range h.groups[level] {
			keys = append(keys, key)
		}
		sortKeys(keys)
		for _, key := range keys {
			tasks = append(tasks, fitTask{level: level, key: key, rows: h.groups[level][key]})
		}
	}
	logger.Info("training hierarchy", "tasks", len(tasks), "workers", workers,
		"quin", len(h.groups[LevelQuin]), "tri", len(h.groups[LevelTri]), "single", len(h.groups[LevelSingle]))

	results := make([]*GMM, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src := rand.NewPCG(seed, uint64(i))
			gmm, err := FitGMM(task.rows, cfg.Fit, src)
			if err != nil {
				return fmt.Errorf("fit %s %s: %w", task.level, task.key.Format(h.coding), err)
			}
			results[i] = gmm
			logger.Debug("fitted", "level", task.level.String(), "context", task.key.Format(h.coding),
				"instances", len(task.rows), "mixtures", len(gmm.Components))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var models [numLevels]map[ContextKey]*GMM
	for _, level := range Levels {
		models[level] = make(map[ContextKey]*GMM, len(h.groups[level]))
	}
	for i, task := range tasks {
		models[task.level][task.key] = results[i]
	}
	h.models = models
	for _, level := range Levels {
		h.stats[level].Models = len(models[level])
		h.groups[level] = nil
	}
	logger.Info("hierarchy trained",
		"quin", h.stats[LevelQuin].Models, "tri", h.stats[LevelTri].Models, "single", h.stats[LevelSingle].Models)
	return nil
}

// Lookup returns the most specific model for q and the level it came from.
func (h *Hierarchy) Lookup(q label.Quinphone) (Level, *GMM, error) {
	if !h.Trained() {
		return 0, nil, ErrNotTrained
	}
	coded := h.coding.Encode(q)
	for _, level := range Levels {
		if m, ok := h.models[level][level.Key(coded)]; ok {
			return level, m, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: %s", ErrLookupGap, q)
}

// Sample draws one coefficient vector per context from the first model hit
// in quin → tri → single order. A context with no model at any level fails
// the whole call.
func (h *Hierarchy) Sample(contexts []label.Quinphone, src rand.Source) ([][]float64, error) {
	out := make([][]float64, len(contexts))
	for i, q := range contexts {
		_, m, err := h.Lookup(q)
		if err != nil {
			return nil, fmt.Errorf("phone %d: %w", i, err)
		}
		out[i] = m.Sample(src)
	}
	return out, nil
}

// BackoffLevels returns, per context, the level that would serve it.
// Contexts with no model are reported as -1.
func (h *Hierarchy) BackoffLevels(contexts []label.Quinphone) []Level {
	out := make([]Level, len(contexts))
	for i, q := range contexts {
		level, _, err := h.Lookup(q)
		if err != nil {
			level = -1
		}
		out[i] = level
	}
	return out
}
