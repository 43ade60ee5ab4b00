package feature

import (
	"errors"
	"fmt"
)

// ErrShape is returned when a matrix does not have the expected dimensions.
var ErrShape = errors.New("feature: shape mismatch")

// Matrix is a dense frame-major feature matrix of float32 values.
// Row t holds the Cols components of frame t.
type Matrix struct {
	Rows int
	Cols int
	Data []float32 // [Rows*Cols]
}

// NewMatrix allocates a zero-filled rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float32, rows*cols),
	}
}

// FromData wraps data as a rows x cols matrix without copying.
func FromData(data []float32, cols int) (*Matrix, error) {
	if cols <= 0 {
		return nil, fmt.Errorf("%w: %d columns", ErrShape, cols)
	}
	if len(data)%cols != 0 {
		return nil, fmt.Errorf("%w: %d values not divisible by %d columns", ErrShape, len(data), cols)
	}
	return &Matrix{Rows: len(data) / cols, Cols: cols, Data: data}, nil
}

// At returns the value at frame t, component d.
func (m *Matrix) At(t, d int) float32 {
	return m.Data[t*m.Cols+d]
}

// Set writes v at frame t, component d.
func (m *Matrix) Set(t, d int, v float32) {
	m.Data[t*m.Cols+d] = v
}

// Row returns frame t as a slice aliasing the matrix storage.
func (m *Matrix) Row(t int) []float32 {
	return m.Data[t*m.Cols : (t+1)*m.Cols]
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]float32, len(m.Data))}
	copy(c.Data, m.Data)
	return c
}

// Slice returns frames [0, rows) as a matrix sharing storage with m.
func (m *Matrix) Slice(rows int) *Matrix {
	if rows > m.Rows {
		rows = m.Rows
	}
	return &Matrix{Rows: rows, Cols: m.Cols, Data: m.Data[:rows*m.Cols]}
}
