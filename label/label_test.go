package label

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullContext = `0 2050000 x^x-pau+ao=th@x_x/A:0_0_0/B:x-x-x@x-x&x-x#x-x$x-x!x-x;x-x|x/C:1+1+2
2050000 3050000 x^pau-ao+th=er@1_2/A:0_0_0/B:1-1-2@1-2&1-7#1-4$1-3!0-2;0-3|ao/C:0+0+2
3050000 3800000 pau^ao-th+er=r@2_1/A:0_0_0/B:1-1-2@1-2&1-7#1-4$1-3!0-2;0-3|ao/C:0+0+2
3800000 4500000 ao^th-er+r=x@1_2/A:1_1_2/B:0-0-2@2-1&2-6#1-4$1-3!1-1;1-2|er/C:x+x+0
4500000 6000000 th^er-r+x=x@x_x/A:0_0_2/B:x-x-x@x-x&x-x#x-x$x-x!x-x;x-x|x/C:x+x+x
`

func TestParse_FullContext(t *testing.T) {
	lab, err := Parse(strings.NewReader(fullContext))
	require.NoError(t, err)
	require.Equal(t, 5, lab.NumPhones())

	assert.InDelta(t, 0.0, lab.FirstPhoneStart(), 1e-12)
	assert.InDelta(t, 0.6, lab.LastPhoneEnd(), 1e-12)
	assert.Equal(t, Quinphone{"", "", "pau", "ao", "th"}, lab.Segments[0].Context)
	assert.Equal(t, Quinphone{"pau", "ao", "th", "er", "r"}, lab.Segments[2].Context)
	assert.True(t, strings.HasPrefix(lab.Segments[1].Line, "2050000 3050000"))
}

func TestParse_Mono(t *testing.T) {
	lab, err := Parse(strings.NewReader("0 100 pau\n100 200 a\n200 300 b\n300 400 pau\n"))
	require.NoError(t, err)
	assert.Equal(t, Quinphone{"", "", "pau", "a", "b"}, lab.Segments[0].Context)
	assert.Equal(t, Quinphone{"pau", "a", "b", "pau", ""}, lab.Segments[2].Context)
	assert.Equal(t, Quinphone{"a", "b", "pau", "", ""}, lab.Segments[3].Context)
}

func TestBoundaries(t *testing.T) {
	lab, err := Parse(strings.NewReader("0 100 a\n100 250 b\n250 400 c\n"))
	require.NoError(t, err)
	got := lab.Boundaries()
	want := []float64{0, 100e-7, 250e-7, 400e-7}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-15)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no times", "pau\n"},
		{"backwards", "100 50 a\n"},
		{"overlap", "0 100 a\n50 150 b\n"},
		{"broken context", "0 100 x^x-pau=th@x\n"},
		{"empty phone", "0 100 \n"},
		{"empty phone after valid line", "0 100 a\n100 200\t \n"},
		{"absent mono phone", "0 100 a\n100 200 x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformed, "err = %v", err)
		})
	}
}

func TestQuinphoneString(t *testing.T) {
	q := Quinphone{"", "pau", "ao", "th", "er"}
	assert.Equal(t, "x^pau-ao+th=er", q.String())
	assert.Equal(t, "ao", q.Center())
}
