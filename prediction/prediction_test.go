package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/basis-speech/feature"
)

func matrix(t *testing.T, cols int, data ...float32) *feature.Matrix {
	t.Helper()
	m, err := feature.FromData(data, cols)
	require.NoError(t, err)
	return m
}

func TestMSEIdentical(t *testing.T) {
	a := matrix(t, 2, 1, 2, 3, 4, 5, 6)
	mse, err := MSE(a, a.Clone())
	require.NoError(t, err)
	assert.Zero(t, mse)
}

func TestMSETruncatesSymmetrically(t *testing.T) {
	long := matrix(t, 2, 1, 1, 2, 2, 9, 9)
	short := matrix(t, 2, 0, 1, 2, 4)

	ab, err := MSE(long, short)
	require.NoError(t, err)
	ba, err := MSE(short, long)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/4, ab, 1e-9)
	assert.Equal(t, ab, ba)
}

func TestMSEErrors(t *testing.T) {
	_, err := MSE(matrix(t, 2, 1, 2), matrix(t, 1, 1, 2))
	assert.ErrorIs(t, err, feature.ErrShape)
	_, err = MSE(feature.NewMatrix(0, 2), matrix(t, 2, 1, 2))
	assert.ErrorIs(t, err, feature.ErrShape)
}

func TestPredictionAggregates(t *testing.T) {
	original := matrix(t, 1, 1, 2, 3, 4)
	p := New("arctic_a0001")
	assert.Equal(t, "arctic_a0001", p.Name())

	p.Add("gmm", FramePositions(4), matrix(t, 1, 1, 2, 3, 4))
	p.Add("lr", FramePositions(3), matrix(t, 1, 2, 2, 2))
	assert.Equal(t, []string{"gmm", "lr"}, p.Models())

	scores, err := p.CalcError(original)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, Score{Model: "gmm", MSE: 0}, scores[0])
	assert.Equal(t, "lr", scores[1].Model)
	assert.InDelta(t, 2.0/3, scores[1].MSE, 1e-9)

	p.Add("gmm", FramePositions(1), matrix(t, 1, 0))
	assert.Equal(t, []string{"gmm", "lr"}, p.Models())
	r, ok := p.Get("gmm")
	require.True(t, ok)
	assert.Equal(t, []float64{0}, r.X)
	_, ok = p.Get("rf")
	assert.False(t, ok)
	assert.Len(t, p.All(), 2)

	_, err = p.CalcError(matrix(t, 2, 1, 2))
	assert.ErrorIs(t, err, feature.ErrShape)
}

func TestFramePositions(t *testing.T) {
	assert.Equal(t, []float64{0, 1.5, 3}, FramePositions(3))
	assert.Equal(t, []float64{0}, FramePositions(1))
	assert.Empty(t, FramePositions(0))
}
