package acoustic

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/basis-speech/label"
)

var testShape = Shape{Components: 2, Bases: 2}

var (
	ctxQuin   = label.Quinphone{"p", "a", "b", "c", "q"} // 3 rows: quin model
	ctxTri    = label.Quinphone{"r", "a", "b", "c", "s"} // 1 row: quin sparse, tri (a,b,c) has 4
	ctxSingle = label.Quinphone{"a", "b", "d", "e", "f"} // 2 rows: quin and tri sparse
)

// backoffCorpus returns contexts and rows that exercise every level.
func backoffCorpus(rng *rand.Rand) ([]label.Quinphone, [][]float64) {
	var contexts []label.Quinphone
	add := func(q label.Quinphone, n int) {
		for range n {
			contexts = append(contexts, q)
		}
	}
	add(ctxQuin, 3)
	add(ctxTri, 1)
	add(ctxSingle, 2)

	rows := make([][]float64, len(contexts))
	for i := range rows {
		rows[i] = make([]float64, testShape.Dim())
		for j := range rows[i] {
			rows[i][j] = rng.NormFloat64()
		}
	}
	return contexts, rows
}

func testTrainConfig() TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.Seed = 42
	cfg.Workers = 2
	return cfg
}

func trainedHierarchy(t *testing.T) *Hierarchy {
	t.Helper()
	contexts, rows := backoffCorpus(rand.New(rand.NewPCG(1, 1)))
	h, err := NewHierarchy(testShape, contexts, rows, DefaultMinInstances)
	require.NoError(t, err)
	require.NoError(t, h.Train(context.Background(), testTrainConfig()))
	return h
}

func TestHierarchyStats(t *testing.T) {
	h := trainedHierarchy(t)
	st := h.Stats()
	assert.Equal(t, LevelStats{Groups: 3, Sparse: 2, Models: 1}, st[LevelQuin])
	assert.Equal(t, LevelStats{Groups: 2, Sparse: 1, Models: 1}, st[LevelTri])
	assert.Equal(t, LevelStats{Groups: 2, Models: 2}, st[LevelSingle])
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "p", "q", "r", "s"}, h.Coding().Symbols())
	assert.Equal(t, testShape, h.Shape())
}

func TestHierarchyLookupBackoff(t *testing.T) {
	h := trainedHierarchy(t)
	tests := []struct {
		name string
		q    label.Quinphone
		want Level
	}{
		{"quin hit", ctxQuin, LevelQuin},
		{"sparse quin falls back to tri", ctxTri, LevelTri},
		{"unknown outer phones use tri", label.Quinphone{"zz", "a", "b", "c", ""}, LevelTri},
		{"sparse tri falls back to single", ctxSingle, LevelSingle},
		{"unseen tri uses single", label.Quinphone{"p", "a", "b", "e", "q"}, LevelSingle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, m, err := h.Lookup(tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
			assert.Equal(t, testShape.Dim(), m.Dim)
		})
	}
}

func TestHierarchyLookupGap(t *testing.T) {
	h := trainedHierarchy(t)
	for _, q := range []label.Quinphone{
		{"p", "a", "zz", "c", "q"}, // unknown center
		{"", "", "f", "", ""},      // seen only as a neighbour
	} {
		_, _, err := h.Lookup(q)
		assert.ErrorIs(t, err, ErrLookupGap, "context %s", q)
	}

	_, err := h.Sample([]label.Quinphone{ctxQuin, {"", "", "f", "", ""}}, rand.NewPCG(1, 1))
	assert.ErrorIs(t, err, ErrLookupGap)
}

func TestHierarchySample(t *testing.T) {
	h := trainedHierarchy(t)
	contexts := []label.Quinphone{ctxQuin, ctxTri, ctxSingle, ctxQuin}
	out, err := h.Sample(contexts, rand.NewPCG(9, 9))
	require.NoError(t, err)
	require.Len(t, out, len(contexts))
	for _, row := range out {
		assert.Len(t, row, testShape.Dim())
	}

	again, err := h.Sample(contexts, rand.NewPCG(9, 9))
	require.NoError(t, err)
	assert.Equal(t, out, again)

	assert.Equal(t, []Level{LevelQuin, LevelTri, LevelSingle, -1},
		h.BackoffLevels([]label.Quinphone{ctxQuin, ctxTri, ctxSingle, {"", "", "zz", "", ""}}))
}

func TestHierarchyMinInstances(t *testing.T) {
	contexts, rows := backoffCorpus(rand.New(rand.NewPCG(1, 1)))

	h, err := NewHierarchy(testShape, contexts, rows, 1)
	require.NoError(t, err)
	require.NoError(t, h.Train(context.Background(), testTrainConfig()))
	level, _, err := h.Lookup(ctxTri)
	require.NoError(t, err)
	assert.Equal(t, LevelQuin, level)

	h, err = NewHierarchy(testShape, contexts, rows, 4)
	require.NoError(t, err)
	require.NoError(t, h.Train(context.Background(), testTrainConfig()))
	level, _, err = h.Lookup(ctxQuin)
	require.NoError(t, err)
	assert.Equal(t, LevelTri, level)
}

func TestHierarchyMalformedRows(t *testing.T) {
	badOnly := label.Quinphone{"", "", "g", "", ""}
	contexts, rows := backoffCorpus(rand.New(rand.NewPCG(1, 1)))
	contexts = append(contexts, ctxSingle, badOnly)
	rows = append(rows, []float64{1, 2, 3}, []float64{9})

	h, err := NewHierarchy(testShape, contexts, rows, DefaultMinInstances)
	require.NoError(t, err)
	st := h.Stats()
	assert.Equal(t, 2, st[LevelQuin].Malformed)
	assert.Equal(t, 2, st[LevelTri].Malformed)
	assert.Equal(t, LevelStats{Groups: 3, Malformed: 2}, st[LevelSingle])

	require.NoError(t, h.Train(context.Background(), testTrainConfig()))
	assert.Equal(t, 2, h.Stats()[LevelSingle].Models)

	// The good rows of d still train a single-phone model.
	level, m, err := h.Lookup(ctxSingle)
	require.NoError(t, err)
	assert.Equal(t, LevelSingle, level)
	assert.Equal(t, testShape.Dim(), m.Dim)

	level, _, err = h.Lookup(ctxQuin)
	require.NoError(t, err)
	assert.Equal(t, LevelQuin, level)

	_, _, err = h.Lookup(badOnly)
	assert.ErrorIs(t, err, ErrLookupGap)
}

func TestHierarchyTrainDeterministic(t *testing.T) {
	contexts, rows := backoffCorpus(rand.New(rand.NewPCG(1, 1)))
	save := func(workers int) []byte {
		h, err := NewHierarchy(testShape, contexts, rows, DefaultMinInstances)
		require.NoError(t, err)
		cfg := testTrainConfig()
		cfg.Workers = workers
		cfg.Fit.Mixtures = 2
		require.NoError(t, h.Train(context.Background(), cfg))
		var buf bytes.Buffer
		require.NoError(t, h.Save(&buf))
		return buf.Bytes()
	}
	assert.Equal(t, save(1), save(4))
}

func TestHierarchyErrors(t *testing.T) {
	contexts, rows := backoffCorpus(rand.New(rand.NewPCG(1, 1)))

	_, err := NewHierarchy(Shape{}, contexts, rows, 3)
	assert.ErrorIs(t, err, ErrInput)
	_, err = NewHierarchy(testShape, contexts[:2], rows, 3)
	assert.ErrorIs(t, err, ErrInput)
	_, err = NewHierarchy(testShape, nil, nil, 3)
	assert.ErrorIs(t, err, ErrInput)

	h, err := NewHierarchy(testShape, contexts, rows, 3)
	require.NoError(t, err)
	_, err = h.Sample([]label.Quinphone{ctxQuin}, rand.NewPCG(1, 1))
	assert.ErrorIs(t, err, ErrNotTrained)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.Train(ctx, testTrainConfig()), context.Canceled)
	assert.False(t, h.Trained())
}
