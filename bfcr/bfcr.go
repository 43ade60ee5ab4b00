// Package bfcr implements the basis-function coefficient representation:
// per-phone Legendre encoding of a feature matrix, decoding back to frames,
// and blending across phone borders.
package bfcr

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/label"
)

// Sentinel errors.
var (
	ErrConfiguration = errors.New("bfcr: invalid configuration")
	ErrNotLoaded     = errors.New("bfcr: no label loaded")
	ErrLabelLoaded   = errors.New("bfcr: label already loaded")
	ErrNotEncoded    = errors.New("bfcr: feature not encoded")
)

// DefaultFrameRate is the feature frame rate in frames per second used to
// place assigned coefficients on the frame axis (48 kHz, 240-sample shift).
const DefaultFrameRate = 48000.0 / 240.0

type encodedFeature struct {
	tensor   *Tensor
	windows  []Window
	original *feature.Matrix // nil when coefficients were assigned, not encoded
}

// BFCR holds the encoded features of one utterance.
type BFCR struct {
	label     *label.Label
	frameRate float64
	features  map[string]*encodedFeature
}

// Option configures a BFCR.
type Option func(*BFCR)

// WithFrameRate sets the frame rate used by SetEncoded.
func WithFrameRate(fps float64) Option {
	return func(b *BFCR) {
		b.frameRate = fps
	}
}

// New creates a BFCR for lab. lab may be nil and loaded later with LoadLabel.
func New(lab *label.Label, opts ...Option) *BFCR {
	b := &BFCR{
		label:     lab,
		frameRate: DefaultFrameRate,
		features:  make(map[string]*encodedFeature),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LoadLabel sets the label. It fails if one is already loaded.
func (b *BFCR) LoadLabel(lab *label.Label) error {
	if b.label != nil {
		return ErrLabelLoaded
	}
	b.label = lab
	return nil
}

// Label returns the loaded label, or nil.
func (b *BFCR) Label() *label.Label { return b.label }

// FrameRate returns the frame rate used by SetEncoded.
func (b *BFCR) FrameRate() float64 { return b.frameRate }

// Encode encodes m under name with numBases coefficients per phone and
// component, replacing any previous encoding of that name. The original
// matrix is retained.
func (b *BFCR) Encode(name string, m *feature.Matrix, numBases int) error {
	if b.label == nil {
		return ErrNotLoaded
	}
	t, windows, err := Encode(m, b.label.Segments, numBases)
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}
	b.features[name] = &encodedFeature{tensor: t, windows: windows, original: m}
	return nil
}

// SetEncoded assigns coefficients for name, one flattened row of
// numComponents×numBases values per phone, as produced by a phone model.
// Frame windows are derived from the label times and the frame rate.
func (b *BFCR) SetEncoded(name string, rows [][]float64, numComponents, numBases int) error {
	if b.label == nil {
		return ErrNotLoaded
	}
	if numComponents < 1 || numBases < 1 {
		return fmt.Errorf("%w: %d components x %d bases", ErrConfiguration, numComponents, numBases)
	}
	if len(rows) != b.label.NumPhones() {
		return fmt.Errorf("%w: %d coefficient rows for %d phones", ErrConfiguration, len(rows), b.label.NumPhones())
	}
	if b.frameRate <= 0 {
		return fmt.Errorf("%w: frame rate %v", ErrConfiguration, b.frameRate)
	}
	t := NewTensor(len(rows), numComponents, numBases)
	for s, row := range rows {
		if len(row) != t.RowLen() {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrConfiguration, s, len(row), t.RowLen())
		}
		dst := t.Row(s)
		for i, v := range row {
			dst[i] = float32(v)
		}
	}
	b.features[name] = &encodedFeature{
		tensor:  t,
		windows: FrameWindows(b.label.Segments, b.frameRate),
	}
	return nil
}

// Decode reconstructs the feature matrix for name.
func (b *BFCR) Decode(name string) (*feature.Matrix, error) {
	f, err := b.feature(name)
	if err != nil {
		return nil, err
	}
	return Decode(f.tensor, f.windows)
}

// DecodeBlended reconstructs name and blends blendingMs around every
// interior phone border.
func (b *BFCR) DecodeBlended(name string, blendingMs float64) (*feature.Matrix, error) {
	m, err := b.Decode(name)
	if err != nil {
		return nil, err
	}
	return b.Blend(name, m, blendingMs)
}

// Blend applies Blend to m using the label borders and the frame windows of name.
func (b *BFCR) Blend(name string, m *feature.Matrix, blendingMs float64) (*feature.Matrix, error) {
	if b.label == nil {
		return nil, ErrNotLoaded
	}
	f, err := b.feature(name)
	if err != nil {
		return nil, err
	}
	if m.Cols != f.tensor.Components {
		return nil, fmt.Errorf("%w: matrix has %d components, %q has %d", ErrConfiguration, m.Cols, name, f.tensor.Components)
	}
	return Blend(m, b.label.Boundaries(), f.windows, blendingMs), nil
}

// Tensor returns the coefficients of name.
func (b *BFCR) Tensor(name string) (*Tensor, error) {
	f, err := b.feature(name)
	if err != nil {
		return nil, err
	}
	return f.tensor, nil
}

// Windows returns the frame windows of name.
func (b *BFCR) Windows(name string) ([]Window, error) {
	f, err := b.feature(name)
	if err != nil {
		return nil, err
	}
	return append([]Window(nil), f.windows...), nil
}

// PhoneCoefficients returns one flattened coefficient row per phone.
func (b *BFCR) PhoneCoefficients(name string) ([][]float64, error) {
	f, err := b.feature(name)
	if err != nil {
		return nil, err
	}
	t := f.tensor
	rows := make([][]float64, t.Segments)
	for s := range rows {
		src := t.Row(s)
		row := make([]float64, len(src))
		for i, v := range src {
			row[i] = float64(v)
		}
		rows[s] = row
	}
	return rows, nil
}

// Original returns the matrix name was encoded from. Assigned coefficients
// have no original and yield ErrNotEncoded.
func (b *BFCR) Original(name string) (*feature.Matrix, error) {
	f, err := b.feature(name)
	if err != nil {
		return nil, err
	}
	if f.original == nil {
		return nil, fmt.Errorf("%w: %q has no original matrix", ErrNotEncoded, name)
	}
	return f.original, nil
}

// Features returns the encoded feature names in sorted order.
func (b *BFCR) Features() []string {
	names := make([]string, 0, len(b.features))
	for n := range b.features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b *BFCR) feature(name string) (*encodedFeature, error) {
	f, ok := b.features[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotEncoded, name)
	}
	return f, nil
}
