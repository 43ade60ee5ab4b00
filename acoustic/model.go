package acoustic

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// modelVersion is bumped whenever the serialized layout changes.
const modelVersion = 1

// ErrModelMismatch is returned when a saved model does not fit the caller's
// expectations or the current format.
var ErrModelMismatch = errors.New("acoustic: model mismatch")

type serializedHierarchy struct {
	Version      int                   `msgpack:"version"`
	Components   int                   `msgpack:"components"`
	Bases        int                   `msgpack:"bases"`
	MinInstances int                   `msgpack:"min_instances"`
	Coding       []string              `msgpack:"coding"`
	Stats        Stats                 `msgpack:"stats"`
	Levels       [][]serializedContext `msgpack:"levels"`
}

type serializedContext struct {
	Key        ContextKey           `msgpack:"key"`
	Components []serializedGaussian `msgpack:"components"`
}

type serializedGaussian struct {
	Mean       []float64 `msgpack:"mean"`
	Covariance []float64 `msgpack:"covariance"`
	LogWeight  float64   `msgpack:"log_weight"`
}

// Save serializes a trained hierarchy to w with msgpack.
func (h *Hierarchy) Save(w io.Writer) error {
	if !h.Trained() {
		return ErrNotTrained
	}
	sh := serializedHierarchy{
		Version:      modelVersion,
		Components:   h.shape.Components,
		Bases:        h.shape.Bases,
		MinInstances: h.minInstances,
		Coding:       h.coding.Symbols(),
		Stats:        h.stats,
		Levels:       make([][]serializedContext, numLevels),
	}
	for _, level := range Levels {
		keys := make([]ContextKey, 0, len(h.models[level]))
		for key := range h.models[level] {
			keys = append(keys, key)
		}
		sortKeys(keys)
		for _, key := range keys {
			sc := serializedContext{Key: key}
			gmm := h.models[level][key]
			for i := range gmm.Components {
				c := &gmm.Components[i]
				sc.Components = append(sc.Components, serializedGaussian{
					Mean:       c.Mean,
					Covariance: c.Covariance,
					LogWeight:  c.LogWeight,
				})
			}
			sh.Levels[level] = append(sh.Levels[level], sc)
		}
	}
	if err := msgpack.NewEncoder(w).Encode(&sh); err != nil {
		return fmt.Errorf("encode hierarchy: %w", err)
	}
	return nil
}

// Load deserializes a hierarchy saved by Save. A zero want accepts any
// shape; otherwise the saved basis order and component count must match.
func Load(r io.Reader, want Shape) (*Hierarchy, error) {
	var sh serializedHierarchy
	if err := msgpack.NewDecoder(r).Decode(&sh); err != nil {
		return nil, fmt.Errorf("decode hierarchy: %w", err)
	}
	if sh.Version != modelVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrModelMismatch, sh.Version, modelVersion)
	}
	shape := Shape{Components: sh.Components, Bases: sh.Bases}
	if want != (Shape{}) && want != shape {
		return nil, fmt.Errorf("%w: saved shape %dx%d, want %dx%d",
			ErrModelMismatch, shape.Components, shape.Bases, want.Components, want.Bases)
	}
	if len(sh.Levels) != numLevels {
		return nil, fmt.Errorf("%w: %d levels, want %d", ErrModelMismatch, len(sh.Levels), numLevels)
	}

	h := &Hierarchy{
		shape:        shape,
		coding:       NewPhoneCoding(sh.Coding),
		minInstances: sh.MinInstances,
		stats:        sh.Stats,
	}
	if h.coding.Len() != len(sh.Coding) {
		return nil, fmt.Errorf("%w: coding table is not a sorted set", ErrModelMismatch)
	}
	for i, s := range sh.Coding {
		if h.coding.Code(s) != i {
			return nil, fmt.Errorf("%w: coding table is not a sorted set", ErrModelMismatch)
		}
	}

	dim := shape.Dim()
	for _, level := range Levels {
		models := make(map[ContextKey]*GMM, len(sh.Levels[level]))
		for _, sc := range sh.Levels[level] {
			g := &GMM{Dim: dim}
			for _, c := range sc.Components {
				if len(c.Mean) != dim {
					return nil, fmt.Errorf("%w: %s %s mean has length %d, want %d",
						ErrModelMismatch, level, sc.Key.Format(h.coding), len(c.Mean), dim)
				}
				g.Components = append(g.Components, Gaussian{
					Mean:       c.Mean,
					Covariance: c.Covariance,
					LogWeight:  c.LogWeight,
				})
			}
			if len(g.Components) == 0 {
				return nil, fmt.Errorf("%w: %s %s has no components", ErrModelMismatch, level, sc.Key.Format(h.coding))
			}
			if err := g.Precompute(); err != nil {
				return nil, fmt.Errorf("%s %s: %w", level, sc.Key.Format(h.coding), err)
			}
			models[sc.Key] = g
		}
		h.models[level] = models
	}
	return h, nil
}
