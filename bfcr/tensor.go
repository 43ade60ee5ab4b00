package bfcr

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/internal/mathutil"
	"github.com/ieee0824/basis-speech/label"
)

// Tensor holds Legendre coefficients indexed [segment][component][basis].
type Tensor struct {
	Segments   int
	Components int
	Bases      int
	Data       []float32 // [Segments*Components*Bases]
}

// NewTensor allocates a zero-filled tensor.
func NewTensor(segments, components, bases int) *Tensor {
	return &Tensor{
		Segments:   segments,
		Components: components,
		Bases:      bases,
		Data:       make([]float32, segments*components*bases),
	}
}

// At returns coefficient b of component c in segment s.
func (t *Tensor) At(s, c, b int) float32 {
	return t.Data[(s*t.Components+c)*t.Bases+b]
}

// Row returns the flattened coefficients of segment s, component-major,
// aliasing the tensor storage.
func (t *Tensor) Row(s int) []float32 {
	n := t.Components * t.Bases
	return t.Data[s*n : (s+1)*n]
}

// RowLen is the length of a flattened segment row, components × bases.
func (t *Tensor) RowLen() int { return t.Components * t.Bases }

// Window is the [Start, End) frame range of one segment.
type Window struct {
	Start int
	End   int
}

// Len returns the number of frames in the window.
func (w Window) Len() int { return w.End - w.Start }

// FrameWindows maps segments onto frame windows at step frames per second.
//
// Each segment starts where the previous one ended, so windows are contiguous
// and never overlap regardless of how the end times round. Only the first
// segment's begin time is rounded independently.
func FrameWindows(segs []label.Segment, step float64) []Window {
	windows := make([]Window, len(segs))
	prev := 0
	for i, s := range segs {
		start := prev
		if i == 0 {
			start = mathutil.RoundIndex(s.Begin * step)
		}
		end := mathutil.RoundIndex(s.End * step)
		if end < start {
			end = start
		}
		windows[i] = Window{Start: start, End: end}
		prev = end
	}
	return windows
}

// Encode fits numBases Legendre coefficients per segment and component of m.
// The frame step is len(m) / lastPhoneEnd. It returns the tensor and the
// frame windows used.
func Encode(m *feature.Matrix, segs []label.Segment, numBases int) (*Tensor, []Window, error) {
	if numBases < 1 {
		return nil, nil, fmt.Errorf("%w: basis order %d < 1", ErrConfiguration, numBases)
	}
	if m == nil || m.Rows < 1 || m.Cols < 1 {
		return nil, nil, fmt.Errorf("%w: empty feature matrix", ErrConfiguration)
	}
	if len(segs) == 0 {
		return nil, nil, fmt.Errorf("%w: no segments", ErrNotLoaded)
	}
	lastEnd := segs[len(segs)-1].End
	if lastEnd <= 0 {
		return nil, nil, fmt.Errorf("%w: last phone ends at %v", ErrConfiguration, lastEnd)
	}
	windows := FrameWindows(segs, float64(m.Rows)/lastEnd)
	t, err := EncodeWindows(m, windows, numBases)
	if err != nil {
		return nil, nil, err
	}
	return t, windows, nil
}

// EncodeWindows fits numBases Legendre coefficients to every window of m.
// Windows are clipped to the matrix; an empty window encodes to zeros.
func EncodeWindows(m *feature.Matrix, windows []Window, numBases int) (*Tensor, error) {
	if numBases < 1 {
		return nil, fmt.Errorf("%w: basis order %d < 1", ErrConfiguration, numBases)
	}
	t := NewTensor(len(windows), m.Cols, numBases)
	for s, w := range windows {
		start, end := min(w.Start, m.Rows), min(w.End, m.Rows)
		n := end - start
		if n <= 0 {
			continue
		}
		y := mat.NewDense(n, m.Cols, mathutil.ToFloat64(m.Data[start*m.Cols:end*m.Cols]))
		x, err := fitSegment(y, numBases)
		if err != nil {
			return nil, fmt.Errorf("fit segment %d: %w", s, err)
		}
		row := t.Row(s)
		for c := 0; c < m.Cols; c++ {
			for b := 0; b < numBases; b++ {
				row[c*numBases+b] = float32(x.At(b, c))
			}
		}
	}
	return t, nil
}

// Decode evaluates t over windows. The result has as many frames as the
// largest window end and t.Components components.
func Decode(t *Tensor, windows []Window) (*feature.Matrix, error) {
	if len(windows) != t.Segments {
		return nil, fmt.Errorf("%w: %d windows for %d segments", ErrConfiguration, len(windows), t.Segments)
	}
	rows := 0
	for _, w := range windows {
		rows = max(rows, w.End)
	}
	out := feature.NewMatrix(rows, t.Components)
	coef := mat.NewDense(t.Bases, t.Components, nil)
	for s, w := range windows {
		n := w.Len()
		if n <= 0 {
			continue
		}
		row := t.Row(s)
		for c := 0; c < t.Components; c++ {
			for b := 0; b < t.Bases; b++ {
				coef.Set(b, c, float64(row[c*t.Bases+b]))
			}
		}
		y := evalSegment(coef, n)
		for i := 0; i < n; i++ {
			mathutil.ToFloat32(out.Row(w.Start+i), y.RawRowView(i))
		}
	}
	return out, nil
}
