package feature

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadMatrix reads a headerless little-endian float32 stream of frames with
// cols components each, the layout of SPTK .mgc files.
func ReadMatrix(r io.Reader, cols int) (*Matrix, error) {
	if cols <= 0 {
		return nil, fmt.Errorf("%w: %d columns", ErrShape, cols)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32 values", ErrShape, len(raw))
	}
	data := make([]float32, len(raw)/4)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("decode matrix: %w", err)
	}
	return FromData(data, cols)
}

// ReadMatrixFile is a convenience wrapper that opens a file path.
func ReadMatrixFile(path string, cols int) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMatrix(f, cols)
}

// WriteMatrix writes m as a headerless little-endian float32 stream.
func WriteMatrix(w io.Writer, m *Matrix) error {
	if m == nil {
		return errors.New("write matrix: nil matrix")
	}
	return binary.Write(w, binary.LittleEndian, m.Data)
}

// WriteMatrixFile writes m to path, creating or truncating it.
func WriteMatrixFile(path string, m *Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteMatrix(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
