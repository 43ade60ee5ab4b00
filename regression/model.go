package regression

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/basis-speech/acoustic"
)

const modelVersion = 1

// Saved model kinds.
const (
	kindLinear = "linear"
	kindForest = "forest"
)

// ErrModelMismatch is returned when a saved model cannot be restored.
var ErrModelMismatch = errors.New("regression: model mismatch")

type serializedHeader struct {
	Version int    `msgpack:"version"`
	Kind    string `msgpack:"kind"`
}

type serializedModel struct {
	Version int       `msgpack:"version"`
	Kind    string    `msgpack:"kind"`
	Coding  []string  `msgpack:"coding"`
	Dim     int       `msgpack:"dim"`
	Coef    []float64 `msgpack:"coef"` // numFeatures × dim, row-major
}

type serializedForest struct {
	Version int      `msgpack:"version"`
	Kind    string   `msgpack:"kind"`
	Coding  []string `msgpack:"coding"`
	Dim     int      `msgpack:"dim"`
	Trees   []tree   `msgpack:"trees"`
}

// Save serializes the model to w with msgpack.
func (m *Model) Save(w io.Writer) error {
	sm := serializedModel{
		Version: modelVersion,
		Kind:    kindLinear,
		Coding:  m.coding.Symbols(),
		Dim:     m.dim,
		Coef:    make([]float64, 0, numFeatures*m.dim),
	}
	for i := range numFeatures {
		sm.Coef = append(sm.Coef, mat.Row(nil, i, m.coef)...)
	}
	if err := msgpack.NewEncoder(w).Encode(&sm); err != nil {
		return fmt.Errorf("encode regression: %w", err)
	}
	return nil
}

// Load deserializes a linear model written by Model.Save.
func Load(r io.Reader) (*Model, error) {
	var sm serializedModel
	if err := msgpack.NewDecoder(r).Decode(&sm); err != nil {
		return nil, fmt.Errorf("decode regression: %w", err)
	}
	if err := checkHeader(sm.Version, sm.Kind, kindLinear); err != nil {
		return nil, err
	}
	if sm.Dim < 1 || len(sm.Coef) != numFeatures*sm.Dim {
		return nil, fmt.Errorf("%w: %d coefficients for dim %d", ErrModelMismatch, len(sm.Coef), sm.Dim)
	}
	return &Model{
		coding: acoustic.NewPhoneCoding(sm.Coding),
		coef:   mat.NewDense(numFeatures, sm.Dim, sm.Coef),
		dim:    sm.Dim,
	}, nil
}

// Save serializes the forest to w with msgpack.
func (f *Forest) Save(w io.Writer) error {
	sf := serializedForest{
		Version: modelVersion,
		Kind:    kindForest,
		Coding:  f.coding.Symbols(),
		Dim:     f.dim,
		Trees:   make([]tree, len(f.trees)),
	}
	for i, t := range f.trees {
		sf.Trees[i] = *t
	}
	if err := msgpack.NewEncoder(w).Encode(&sf); err != nil {
		return fmt.Errorf("encode forest: %w", err)
	}
	return nil
}

// LoadForest deserializes a forest written by Forest.Save. Every tree is
// checked so that prediction cannot index outside it.
func LoadForest(r io.Reader) (*Forest, error) {
	var sf serializedForest
	if err := msgpack.NewDecoder(r).Decode(&sf); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if err := checkHeader(sf.Version, sf.Kind, kindForest); err != nil {
		return nil, err
	}
	if sf.Dim < 1 || len(sf.Trees) == 0 {
		return nil, fmt.Errorf("%w: %d trees of dim %d", ErrModelMismatch, len(sf.Trees), sf.Dim)
	}
	f := &Forest{
		coding: acoustic.NewPhoneCoding(sf.Coding),
		trees:  make([]*tree, len(sf.Trees)),
		dim:    sf.Dim,
	}
	for i := range sf.Trees {
		t := &sf.Trees[i]
		if err := t.validate(sf.Dim); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		f.trees[i] = t
	}
	return f, nil
}

// validate requires children to come after their parent, which also rules
// out cycles.
func (t *tree) validate(dim int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrModelMismatch)
	}
	for i, n := range t.Nodes {
		switch {
		case n.Feature < 0:
			if n.Value < 0 || n.Value+dim > len(t.Values) {
				return fmt.Errorf("%w: leaf %d value offset %d", ErrModelMismatch, i, n.Value)
			}
		case n.Feature >= numCoded:
			return fmt.Errorf("%w: node %d splits on position %d", ErrModelMismatch, i, n.Feature)
		case n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes):
			return fmt.Errorf("%w: node %d children %d, %d", ErrModelMismatch, i, n.Left, n.Right)
		}
	}
	return nil
}

// LoadRegressor restores a model written by either Save method.
func LoadRegressor(r io.Reader) (Regressor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var h serializedHeader
	if err := msgpack.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode regression: %w", err)
	}
	switch h.Kind {
	case kindLinear:
		return Load(bytes.NewReader(data))
	case kindForest:
		return LoadForest(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", ErrModelMismatch, h.Kind)
	}
}

func checkHeader(version int, kind, want string) error {
	if version != modelVersion {
		return fmt.Errorf("%w: format version %d, want %d", ErrModelMismatch, version, modelVersion)
	}
	if kind != want {
		return fmt.Errorf("%w: model kind %q, want %q", ErrModelMismatch, kind, want)
	}
	return nil
}
