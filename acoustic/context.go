package acoustic

import (
	"fmt"
	"slices"
	"sort"

	"github.com/ieee0824/basis-speech/label"
)

// Absent is the code of a missing or unknown phone symbol.
const Absent = -1

// PhoneCoding maps phone symbols to stable integer codes: a symbol's code is
// its rank in the alphabetically sorted set of training symbols. The zero
// value codes every symbol as Absent. A PhoneCoding is immutable.
type PhoneCoding struct {
	symbols []string
	codes   map[string]int
}

// NewPhoneCoding builds a coding over the distinct non-empty symbols.
func NewPhoneCoding(symbols []string) *PhoneCoding {
	seen := make(map[string]struct{}, len(symbols))
	var uniq []string
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}
	sort.Strings(uniq)
	codes := make(map[string]int, len(uniq))
	for i, s := range uniq {
		codes[s] = i
	}
	return &PhoneCoding{symbols: uniq, codes: codes}
}

// CodingFromContexts builds a coding over every symbol that appears in any
// position of the given contexts.
func CodingFromContexts(contexts []label.Quinphone) *PhoneCoding {
	var symbols []string
	for _, q := range contexts {
		symbols = append(symbols, q[:]...)
	}
	return NewPhoneCoding(symbols)
}

// Code returns the code of sym, or Absent if sym is empty or unknown.
func (c *PhoneCoding) Code(sym string) int {
	if code, ok := c.codes[sym]; ok {
		return code
	}
	return Absent
}

// Symbol returns the symbol for code, or "" for Absent and out-of-range codes.
func (c *PhoneCoding) Symbol(code int) string {
	if code < 0 || code >= len(c.symbols) {
		return ""
	}
	return c.symbols[code]
}

// Symbols returns the coded symbols in code order.
func (c *PhoneCoding) Symbols() []string {
	return append([]string(nil), c.symbols...)
}

// Len returns the number of coded symbols.
func (c *PhoneCoding) Len() int { return len(c.symbols) }

// Encode codes every position of q.
func (c *PhoneCoding) Encode(q label.Quinphone) CodedContext {
	var cc CodedContext
	for i, s := range q {
		cc[i] = c.Code(s)
	}
	return cc
}

// CodedContext is an integer-coded quin-phone.
type CodedContext [5]int

// ContextKey identifies a context group at one level. Positions outside the
// level's window hold Absent.
type ContextKey [5]int

// Level is a context granularity of the backoff hierarchy.
type Level int

const (
	LevelQuin Level = iota
	LevelTri
	LevelSingle

	numLevels = 3
)

// Levels lists the levels in lookup order, most specific first.
var Levels = [numLevels]Level{LevelQuin, LevelTri, LevelSingle}

// Width returns the number of phones in the level's context window.
func (l Level) Width() int {
	switch l {
	case LevelQuin:
		return 5
	case LevelTri:
		return 3
	default:
		return 1
	}
}

// Key keeps the centered Width() positions of c and blanks the rest.
func (l Level) Key(c CodedContext) ContextKey {
	k := ContextKey{Absent, Absent, Absent, Absent, Absent}
	half := l.Width() / 2
	for i := 2 - half; i <= 2+half; i++ {
		k[i] = c[i]
	}
	return k
}

func (l Level) String() string {
	switch l {
	case LevelQuin:
		return "quin"
	case LevelTri:
		return "tri"
	case LevelSingle:
		return "single"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Format renders k in full-context notation with the symbols of coding,
// e.g. "x^pau-ao+th=x" for a tri-phone key.
func (k ContextKey) Format(coding *PhoneCoding) string {
	var q label.Quinphone
	for i, code := range k {
		q[i] = coding.Symbol(code)
	}
	return q.String()
}

func sortKeys(keys []ContextKey) {
	slices.SortFunc(keys, compareKeys)
}

func compareKeys(a, b ContextKey) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
