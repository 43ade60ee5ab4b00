package bfcr

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/label"
)

// formatVersion is bumped whenever serializedBFCR changes incompatibly.
const formatVersion = 1

// serializable types for msgpack encoding
type serializedBFCR struct {
	Version   int                          `msgpack:"v"`
	FrameRate float64                      `msgpack:"frame_rate"`
	Segments  []serializedSegment          `msgpack:"segments"`
	Features  map[string]serializedFeature `msgpack:"features"`
}

type serializedSegment struct {
	Begin   float64  `msgpack:"b"`
	End     float64  `msgpack:"e"`
	Context []string `msgpack:"ctx"`
	Line    string   `msgpack:"line"`
}

type serializedFeature struct {
	Components   int       `msgpack:"components"`
	Bases        int       `msgpack:"bases"`
	Coefficients []float32 `msgpack:"coef"`
	Windows      [][2]int  `msgpack:"windows"`
	OriginalCols int       `msgpack:"orig_cols,omitempty"`
	Original     []float32 `msgpack:"orig,omitempty"`
}

// MarshalBinary encodes the label, windows, coefficients and original
// matrices.
func (b *BFCR) MarshalBinary() ([]byte, error) {
	sb := serializedBFCR{
		Version:   formatVersion,
		FrameRate: b.frameRate,
		Features:  make(map[string]serializedFeature, len(b.features)),
	}
	if b.label != nil {
		for _, s := range b.label.Segments {
			sb.Segments = append(sb.Segments, serializedSegment{
				Begin:   s.Begin,
				End:     s.End,
				Context: s.Context[:],
				Line:    s.Line,
			})
		}
	}
	for name, f := range b.features {
		sf := serializedFeature{
			Components:   f.tensor.Components,
			Bases:        f.tensor.Bases,
			Coefficients: f.tensor.Data,
			Windows:      make([][2]int, len(f.windows)),
		}
		for i, w := range f.windows {
			sf.Windows[i] = [2]int{w.Start, w.End}
		}
		if f.original != nil {
			sf.OriginalCols = f.original.Cols
			sf.Original = f.original.Data
		}
		sb.Features[name] = sf
	}
	return msgpack.Marshal(&sb)
}

// UnmarshalBinary restores a BFCR encoded by MarshalBinary, replacing the
// receiver's state.
func (b *BFCR) UnmarshalBinary(data []byte) error {
	var sb serializedBFCR
	if err := msgpack.Unmarshal(data, &sb); err != nil {
		return fmt.Errorf("decode bfcr: %w", err)
	}
	if sb.Version != formatVersion {
		return fmt.Errorf("%w: bfcr format version %d, want %d", ErrConfiguration, sb.Version, formatVersion)
	}

	var lab *label.Label
	if len(sb.Segments) > 0 {
		lab = &label.Label{Segments: make([]label.Segment, len(sb.Segments))}
		for i, s := range sb.Segments {
			seg := label.Segment{Begin: s.Begin, End: s.End, Line: s.Line}
			copy(seg.Context[:], s.Context)
			lab.Segments[i] = seg
		}
	}

	features := make(map[string]*encodedFeature, len(sb.Features))
	for name, sf := range sb.Features {
		n := len(sf.Windows)
		if sf.Components < 1 || sf.Bases < 1 || len(sf.Coefficients) != n*sf.Components*sf.Bases {
			return fmt.Errorf("%w: feature %q has %d coefficients for %d segments x %d components x %d bases",
				ErrConfiguration, name, len(sf.Coefficients), n, sf.Components, sf.Bases)
		}
		if lab != nil && n != lab.NumPhones() {
			return fmt.Errorf("%w: feature %q has %d segments, label has %d", ErrConfiguration, name, n, lab.NumPhones())
		}
		f := &encodedFeature{
			tensor: &Tensor{
				Segments:   n,
				Components: sf.Components,
				Bases:      sf.Bases,
				Data:       sf.Coefficients,
			},
			windows: make([]Window, n),
		}
		prevEnd := 0
		for i, w := range sf.Windows {
			win := Window{Start: w[0], End: w[1]}
			if win.Start < prevEnd || win.End < win.Start {
				return fmt.Errorf("%w: feature %q window %d [%d, %d) after end %d",
					ErrConfiguration, name, i, win.Start, win.End, prevEnd)
			}
			f.windows[i] = win
			prevEnd = win.End
		}
		if sf.OriginalCols > 0 {
			orig, err := feature.FromData(sf.Original, sf.OriginalCols)
			if err != nil {
				return fmt.Errorf("feature %q original: %w", name, err)
			}
			f.original = orig
		}
		features[name] = f
	}

	b.label = lab
	b.frameRate = sb.FrameRate
	b.features = features
	return nil
}

// Save writes the encoded state to w.
func (b *BFCR) Save(w io.Writer) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Load reads a BFCR written by Save.
func Load(r io.Reader) (*BFCR, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b := New(nil)
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}
