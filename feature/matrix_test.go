package feature

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromData(t *testing.T) {
	m, err := FromData([]float32{1, 2, 3, 4, 5, 6}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Rows)
	assert.Equal(t, float32(4), m.At(1, 1))
	assert.Equal(t, []float32{5, 6}, m.Row(2))

	_, err = FromData([]float32{1, 2, 3}, 2)
	assert.ErrorIs(t, err, ErrShape)
	_, err = FromData(nil, 0)
	assert.ErrorIs(t, err, ErrShape)
}

func TestReadWriteMatrix(t *testing.T) {
	m := NewMatrix(4, 3)
	for i := range m.Data {
		m.Data[i] = float32(i) * 0.25
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, m))
	assert.Equal(t, 4*3*4, buf.Len())

	got, err := ReadMatrix(&buf, 3)
	require.NoError(t, err)
	assert.Equal(t, m.Rows, got.Rows)
	assert.Equal(t, m.Data, got.Data)
}

func TestReadMatrix_BadLength(t *testing.T) {
	_, err := ReadMatrix(bytes.NewReader(make([]byte, 10)), 1)
	assert.ErrorIs(t, err, ErrShape)
	_, err = ReadMatrix(bytes.NewReader(make([]byte, 12)), 2)
	assert.ErrorIs(t, err, ErrShape)
}

func TestSliceAndClone(t *testing.T) {
	m, err := FromData([]float32{1, 2, 3, 4}, 1)
	require.NoError(t, err)
	s := m.Slice(2)
	assert.Equal(t, 2, s.Rows)
	assert.Equal(t, 4, m.Slice(10).Rows)

	c := m.Clone()
	c.Set(0, 0, 99)
	assert.Equal(t, float32(1), m.At(0, 0))
}
