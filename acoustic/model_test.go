package acoustic

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ieee0824/basis-speech/label"
)

func TestSaveLoad(t *testing.T) {
	h := trainedHierarchy(t)
	var buf bytes.Buffer
	require.NoError(t, h.Save(&buf))

	loaded, err := Load(&buf, testShape)
	require.NoError(t, err)
	assert.Equal(t, h.Stats(), loaded.Stats())
	assert.Equal(t, h.Coding().Symbols(), loaded.Coding().Symbols())
	assert.Equal(t, h.Shape(), loaded.Shape())

	x := []float64{0.1, -0.2, 0.3, 0.4}
	for _, q := range []label.Quinphone{ctxQuin, ctxTri, ctxSingle} {
		wantLevel, want, err := h.Lookup(q)
		require.NoError(t, err)
		gotLevel, got, err := loaded.Lookup(q)
		require.NoError(t, err)
		assert.Equal(t, wantLevel, gotLevel)
		assert.InDelta(t, want.LogProb(x), got.LogProb(x), 1e-12)
	}

	contexts := []label.Quinphone{ctxQuin, ctxTri, ctxSingle, ctxQuin}
	want, err := h.Sample(contexts, rand.NewPCG(21, 21))
	require.NoError(t, err)
	got, err := loaded.Sample(contexts, rand.NewPCG(21, 21))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadAnyShape(t *testing.T) {
	h := trainedHierarchy(t)
	var buf bytes.Buffer
	require.NoError(t, h.Save(&buf))
	loaded, err := Load(&buf, Shape{})
	require.NoError(t, err)
	assert.Equal(t, testShape, loaded.Shape())
}

func TestLoadMismatch(t *testing.T) {
	h := trainedHierarchy(t)
	var buf bytes.Buffer
	require.NoError(t, h.Save(&buf))
	_, err := Load(bytes.NewReader(buf.Bytes()), Shape{Components: 2, Bases: 3})
	assert.ErrorIs(t, err, ErrModelMismatch)

	blob, err := msgpack.Marshal(&serializedHierarchy{Version: modelVersion + 1})
	require.NoError(t, err)
	_, err = Load(bytes.NewReader(blob), Shape{})
	assert.ErrorIs(t, err, ErrModelMismatch)

	blob, err = msgpack.Marshal(&serializedHierarchy{
		Version:    modelVersion,
		Components: 1,
		Bases:      1,
		Coding:     []string{"b", "a"},
		Levels:     make([][]serializedContext, numLevels),
	})
	require.NoError(t, err)
	_, err = Load(bytes.NewReader(blob), Shape{})
	assert.ErrorIs(t, err, ErrModelMismatch)

	_, err = Load(bytes.NewReader([]byte{0xc1}), Shape{})
	assert.Error(t, err)
}

func TestSaveUntrained(t *testing.T) {
	contexts, rows := backoffCorpus(rand.New(rand.NewPCG(1, 1)))
	h, err := NewHierarchy(testShape, contexts, rows, DefaultMinInstances)
	require.NoError(t, err)
	assert.ErrorIs(t, h.Save(&bytes.Buffer{}), ErrNotTrained)
}
