package regression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ieee0824/basis-speech/label"
)

func TestFitRecoversLinearMap(t *testing.T) {
	phones := []string{"a", "b", "c", "d", "e", "f", "g"}
	var contexts []label.Quinphone
	var rows [][]float64
	for i := range 12 {
		var q label.Quinphone
		var codes [5]float64
		for j := range q {
			k := (i*(j+1) + j) % len(phones)
			q[j] = phones[k]
			codes[j] = float64(k)
		}
		contexts = append(contexts, q)
		rows = append(rows, []float64{
			1 + 2*codes[2],
			codes[0] - codes[4] + 0.5*codes[1] - 3,
		})
	}

	m, err := Fit(contexts, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dim())

	got := m.Predict(contexts)
	require.Len(t, got, len(rows))
	for i := range rows {
		assert.InDeltaSlice(t, rows[i], got[i], 1e-8, "row %d", i)
	}
}

func TestFitRankDeficient(t *testing.T) {
	q := label.Quinphone{"", "a", "b", "c", ""}
	contexts := []label.Quinphone{q, q, q, q}
	rows := [][]float64{{1, 0}, {3, 2}, {2, 4}, {2, 2}}

	m, err := Fit(contexts, rows)
	require.NoError(t, err)
	got := m.Predict([]label.Quinphone{q})
	assert.InDeltaSlice(t, []float64{2, 2}, got[0], 1e-9)
}

func TestFitErrors(t *testing.T) {
	q := label.Quinphone{"", "", "a", "", ""}
	_, err := Fit([]label.Quinphone{q}, nil)
	assert.ErrorIs(t, err, ErrInput)
	_, err = Fit(nil, nil)
	assert.ErrorIs(t, err, ErrInput)
	_, err = Fit([]label.Quinphone{q, q}, [][]float64{{1, 2}, {1}})
	assert.ErrorIs(t, err, ErrInput)
	_, err = Fit([]label.Quinphone{q}, [][]float64{{}})
	assert.ErrorIs(t, err, ErrInput)
}

func TestSaveLoad(t *testing.T) {
	contexts := []label.Quinphone{
		{"", "", "a", "b", "c"},
		{"", "a", "b", "c", ""},
		{"a", "b", "c", "", ""},
		{"", "", "c", "a", ""},
	}
	rows := [][]float64{{1, 2, 3}, {2, 3, 1}, {0, 0, 1}, {5, 1, 1}}
	m, err := Fit(contexts, rows)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Dim(), loaded.Dim())
	assert.Equal(t, NameLinear, loaded.Name())

	want := m.Predict(contexts)
	got := loaded.Predict(contexts)
	for i := range want {
		assert.InDeltaSlice(t, want[i], got[i], 1e-12)
	}
}

func TestLoadMismatch(t *testing.T) {
	blob, err := msgpack.Marshal(&serializedModel{Version: modelVersion + 1})
	require.NoError(t, err)
	_, err = Load(bytes.NewReader(blob))
	assert.ErrorIs(t, err, ErrModelMismatch)

	blob, err = msgpack.Marshal(&serializedModel{Version: modelVersion, Kind: kindLinear, Dim: 2, Coef: []float64{1}})
	require.NoError(t, err)
	_, err = Load(bytes.NewReader(blob))
	assert.ErrorIs(t, err, ErrModelMismatch)
}
