package bfcr

import (
	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/internal/mathutil"
)

// DefaultBlendingMs is the half-window blended on each side of a phone border.
const DefaultBlendingMs = 25.0

// Blend smooths the discontinuities at interior phone borders of m in place
// and returns m.
//
// boundaries holds the utterance start followed by every segment end time in
// seconds. The first and last entries are never blended. Around each interior
// border the frames of a ±blendingMs window are replaced by a straight line
// from the frame at the window start to the frame at the window end. A border
// is skipped when the window would reach past a neighbouring border.
// Every border between two phones is a candidate, the end of the first
// phone included.
func Blend(m *feature.Matrix, boundaries []float64, windows []Window, blendingMs float64) *feature.Matrix {
	if m == nil {
		return m
	}
	startVals := make([]float32, m.Cols)
	endVals := make([]float32, m.Cols)
	for i := 1; i < len(boundaries)-1; i++ {
		w, ok := BlendWindow(m.Rows, boundaries, windows, blendingMs, i)
		if !ok {
			continue
		}
		copy(startVals, m.Row(w.Start))
		copy(endVals, m.Row(w.End))
		for j, f := range mathutil.Linspace(1, 0, w.Len()) {
			row := m.Row(w.Start + j)
			for c := range row {
				row[c] = float32(f)*startVals[c] + float32(1-f)*endVals[c]
			}
		}
	}
	return m
}

// BlendWindow reports the frames Blend rewrites around interior border i:
// rows [Start, End) are overwritten, interpolating toward row End. ok is
// false when the border is not blended.
func BlendWindow(rows int, boundaries []float64, windows []Window, blendingMs float64, i int) (Window, bool) {
	if len(boundaries) < 3 || len(windows) == 0 || blendingMs <= 0 || i <= 0 || i >= len(boundaries)-1 {
		return Window{}, false
	}
	lastIndex := windows[len(windows)-1].End
	lastTime := boundaries[len(boundaries)-1]
	if lastIndex <= 0 || lastTime <= 0 {
		return Window{}, false
	}
	step := lastTime / float64(lastIndex)
	half := blendingMs / 1000
	start := boundaries[i] - half
	end := boundaries[i] + half
	if start < boundaries[i-1] || end > boundaries[i+1] {
		return Window{}, false
	}
	si := mathutil.RoundIndex(start / step)
	ei := mathutil.RoundIndex(end/step) - 1
	if ei-si <= 0 || si < 0 || ei >= rows {
		return Window{}, false
	}
	return Window{Start: si, End: ei}, true
}
