// Package label parses HTS-style phone label files into ordered phone
// segments with quin-phone context.
//
// Two line formats are accepted:
//
//	begin end LL^L-C+R=RR@...      (full-context)
//	begin end phone                (mono)
//
// Times are integers in units of 100 ns. For mono labels the quin-phone
// context is taken from the neighbouring lines.
package label

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// TimeUnit is the duration of one label time tick in seconds.
const TimeUnit = 1e-7

// Absent is the HTS marker for a missing context symbol.
const Absent = "x"

// ErrMalformed is returned for lines that cannot be parsed or segments that
// overlap or run backwards.
var ErrMalformed = errors.New("label: malformed")

var lineRe = regexp.MustCompile(`^\s*(\d+)\s+(\d+)\s+(.*)$`)

// Quinphone is the five-symbol phonetic context around a phone:
// two preceding, current, two following. Empty strings mark absent context.
type Quinphone [5]string

// Center returns the current phone.
func (q Quinphone) Center() string { return q[2] }

// String formats q in HTS notation, e.g. "x^pau-ao+th=er".
func (q Quinphone) String() string {
	s := make([]string, 5)
	for i, p := range q {
		if p == "" {
			p = Absent
		}
		s[i] = p
	}
	return s[0] + "^" + s[1] + "-" + s[2] + "+" + s[3] + "=" + s[4]
}

// Segment is one phone of an utterance.
type Segment struct {
	Begin   float64 // seconds
	End     float64 // seconds
	Context Quinphone
	Line    string // raw label line
}

// Label is an ordered, non-overlapping sequence of phone segments.
type Label struct {
	Segments []Segment
}

// Parse reads a label from r.
func Parse(r io.Reader) (*Label, error) {
	lab := &Label{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	mono := false

	for scanner.Scan() {
		lineNum++
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		m := lineRe.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("%w: line %d: expected \"begin end label\"", ErrMalformed, lineNum)
		}
		begin, _ := strconv.ParseInt(m[1], 10, 64)
		end, _ := strconv.ParseInt(m[2], 10, 64)

		seg := Segment{
			Begin: float64(begin) * TimeUnit,
			End:   float64(end) * TimeUnit,
			Line:  raw,
		}
		rest := strings.TrimSpace(m[3])
		if strings.ContainsAny(rest, "^+=") {
			ctx, err := parseQuinphone(rest)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			seg.Context = ctx
		} else {
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				return nil, fmt.Errorf("%w: line %d: empty phone", ErrMalformed, lineNum)
			}
			mono = true
			seg.Context[2] = symbol(fields[0])
			if seg.Context[2] == "" {
				return nil, fmt.Errorf("%w: line %d: absent current phone", ErrMalformed, lineNum)
			}
		}

		if seg.End < seg.Begin {
			return nil, fmt.Errorf("%w: line %d: end %d before begin %d", ErrMalformed, lineNum, end, begin)
		}
		if n := len(lab.Segments); n > 0 && seg.Begin < lab.Segments[n-1].End {
			return nil, fmt.Errorf("%w: line %d: overlaps previous segment", ErrMalformed, lineNum)
		}
		lab.Segments = append(lab.Segments, seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lab.Segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrMalformed)
	}
	if mono {
		lab.fillMonoContext()
	}
	return lab, nil
}

// ParseFile is a convenience wrapper that opens a file path.
func ParseFile(path string) (*Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// parseQuinphone parses the leading "LL^L-C+R=RR" part of a full-context label.
func parseQuinphone(s string) (Quinphone, error) {
	var q Quinphone
	s, _, _ = strings.Cut(s, "/")
	s, _, _ = strings.Cut(s, "@")

	ll, rest, ok := strings.Cut(s, "^")
	if !ok {
		return q, fmt.Errorf("%w: missing '^' in %q", ErrMalformed, s)
	}
	l, rest, ok := strings.Cut(rest, "-")
	if !ok {
		return q, fmt.Errorf("%w: missing '-' in %q", ErrMalformed, s)
	}
	c, rest, ok := strings.Cut(rest, "+")
	if !ok {
		return q, fmt.Errorf("%w: missing '+' in %q", ErrMalformed, s)
	}
	r, rr, ok := strings.Cut(rest, "=")
	if !ok {
		return q, fmt.Errorf("%w: missing '=' in %q", ErrMalformed, s)
	}
	q = Quinphone{symbol(ll), symbol(l), symbol(c), symbol(r), symbol(rr)}
	if q[2] == "" {
		return q, fmt.Errorf("%w: no current phone in %q", ErrMalformed, s)
	}
	return q, nil
}

func symbol(s string) string {
	if s == Absent {
		return ""
	}
	return s
}

// fillMonoContext derives quin-phone context from segment order for labels
// that carry only the current phone.
func (l *Label) fillMonoContext() {
	centers := make([]string, len(l.Segments))
	for i, s := range l.Segments {
		centers[i] = s.Context.Center()
	}
	at := func(i int) string {
		if i < 0 || i >= len(centers) {
			return ""
		}
		return centers[i]
	}
	for i := range l.Segments {
		l.Segments[i].Context = Quinphone{at(i - 2), at(i - 1), centers[i], at(i + 1), at(i + 2)}
	}
}

// NumPhones returns the number of segments.
func (l *Label) NumPhones() int { return len(l.Segments) }

// FirstPhoneStart returns the begin time of the first segment in seconds.
func (l *Label) FirstPhoneStart() float64 { return l.Segments[0].Begin }

// LastPhoneEnd returns the end time of the last segment in seconds.
func (l *Label) LastPhoneEnd() float64 { return l.Segments[len(l.Segments)-1].End }

// Boundaries returns the begin time of the first segment followed by the end
// time of every segment, len(Segments)+1 values.
func (l *Label) Boundaries() []float64 {
	b := make([]float64, 0, len(l.Segments)+1)
	b = append(b, l.FirstPhoneStart())
	for _, s := range l.Segments {
		b = append(b, s.End)
	}
	return b
}

// Contexts returns the quin-phone context of every segment in order.
func (l *Label) Contexts() []Quinphone {
	out := make([]Quinphone, len(l.Segments))
	for i, s := range l.Segments {
		out[i] = s.Context
	}
	return out
}
