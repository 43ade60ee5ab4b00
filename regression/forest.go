package regression

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/ieee0824/basis-speech/acoustic"
	"github.com/ieee0824/basis-speech/label"
)

// numCoded is the number of context positions a tree can split on.
const numCoded = len(acoustic.CodedContext{})

// pureImpurity is the mean squared deviation below which a node is a leaf.
const pureImpurity = 1e-12

// ForestConfig holds random forest training parameters.
type ForestConfig struct {
	Trees           int
	MinSamplesSplit int    // smallest node that is split further
	MinSamplesLeaf  int    // smallest child a split may produce
	MaxFeatures     int    // context positions tried per split; <= 0 means all
	Workers         int    // concurrent tree fits; <= 0 means runtime.NumCPU()
	Seed            uint64 // 0 picks a time based seed
}

// DefaultForestConfig returns fully grown, bootstrapped trees that try every
// context position at each split.
func DefaultForestConfig(trees int) ForestConfig {
	return ForestConfig{
		Trees:           trees,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Workers:         runtime.NumCPU(),
	}
}

// Forest is a bagged ensemble of multi-output regression trees over coded
// quin-phone contexts. A prediction is the mean of the trees' leaf means.
type Forest struct {
	coding *acoustic.PhoneCoding
	trees  []*tree
	dim    int
}

// node is a leaf when Feature < 0; Value then indexes the tree's leaf means.
type node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     int     `msgpack:"v"`
}

type tree struct {
	Nodes  []node    `msgpack:"nodes"`
	Values []float64 `msgpack:"values"` // leaf means, dim values each
}

// FitForest grows cfg.Trees trees, each on a bootstrap resample of the rows.
// Trees are fitted concurrently; tree i draws from a generator seeded by
// cfg.Seed and i, so the forest does not depend on the worker count.
func FitForest(ctx context.Context, contexts []label.Quinphone, rows [][]float64, cfg ForestConfig) (*Forest, error) {
	if err := checkInput(contexts, rows); err != nil {
		return nil, err
	}
	if cfg.Trees < 1 {
		return nil, fmt.Errorf("%w: %d trees", ErrInput, cfg.Trees)
	}
	cfg.MinSamplesSplit = max(cfg.MinSamplesSplit, 2)
	cfg.MinSamplesLeaf = max(cfg.MinSamplesLeaf, 1)
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	coding := acoustic.CodingFromContexts(contexts)
	codes := make([]acoustic.CodedContext, len(contexts))
	for i, q := range contexts {
		codes[i] = coding.Encode(q)
	}
	f := &Forest{coding: coding, trees: make([]*tree, cfg.Trees), dim: len(rows[0])}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range f.trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := &treeBuilder{
				codes: codes,
				y:     rows,
				dim:   f.dim,
				cfg:   cfg,
				rng:   rand.New(rand.NewPCG(seed, uint64(i))),
				t:     &tree{},
			}
			idx := make([]int, len(rows))
			for k := range idx {
				idx[k] = b.rng.IntN(len(rows))
			}
			b.build(idx)
			f.trees[i] = b.t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// Name identifies the forest by its size, e.g. "RandomForest10".
func (f *Forest) Name() string { return fmt.Sprintf("RandomForest%d", len(f.trees)) }

// Dim returns the predicted vector length.
func (f *Forest) Dim() int { return f.dim }

// Trees returns the number of trees.
func (f *Forest) Trees() int { return len(f.trees) }

// Predict returns one vector per context.
func (f *Forest) Predict(contexts []label.Quinphone) [][]float64 {
	out := make([][]float64, len(contexts))
	for i, q := range contexts {
		code := f.coding.Encode(q)
		v := make([]float64, f.dim)
		for _, t := range f.trees {
			floats.Add(v, t.leaf(code, f.dim))
		}
		floats.Scale(1/float64(len(f.trees)), v)
		out[i] = v
	}
	return out
}

func (t *tree) leaf(code acoustic.CodedContext, dim int) []float64 {
	n := t.Nodes[0]
	for n.Feature >= 0 {
		if float64(code[n.Feature]) <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return t.Values[n.Value : n.Value+dim]
}

type treeBuilder struct {
	codes []acoustic.CodedContext
	y     [][]float64
	dim   int
	cfg   ForestConfig
	rng   *rand.Rand
	t     *tree
}

// build grows the subtree over the samples idx and returns its node index.
// idx is reordered in place.
func (b *treeBuilder) build(idx []int) int {
	id := len(b.t.Nodes)
	b.t.Nodes = append(b.t.Nodes, node{Feature: -1})

	sum := make([]float64, b.dim)
	for _, i := range idx {
		floats.Add(sum, b.y[i])
	}
	feature, threshold, ok := -1, 0.0, false
	if len(idx) >= b.cfg.MinSamplesSplit && b.impurity(idx, sum) > pureImpurity {
		feature, threshold, ok = b.bestSplit(idx, sum)
	}
	if !ok {
		floats.Scale(1/float64(len(idx)), sum)
		b.t.Nodes[id].Value = len(b.t.Values)
		b.t.Values = append(b.t.Values, sum...)
		return id
	}

	mid := 0
	for k, i := range idx {
		if float64(b.codes[i][feature]) <= threshold {
			idx[mid], idx[k] = idx[k], idx[mid]
			mid++
		}
	}
	left := b.build(idx[:mid])
	right := b.build(idx[mid:])
	b.t.Nodes[id] = node{Feature: feature, Threshold: threshold, Left: left, Right: right}
	return id
}

// impurity is the mean squared distance of the samples to their mean,
// summed over outputs.
func (b *treeBuilder) impurity(idx []int, sum []float64) float64 {
	n := float64(len(idx))
	total := 0.0
	for _, i := range idx {
		for j, v := range b.y[i] {
			d := v - sum[j]/n
			total += d * d
		}
	}
	return total / n
}

// bestSplit finds the threshold that minimizes the children's summed squared
// error, which is the one maximizing |S_L|²/n_L + |S_R|²/n_R.
func (b *treeBuilder) bestSplit(idx []int, total []float64) (int, float64, bool) {
	n := len(idx)
	features := b.rng.Perm(numCoded)
	if m := b.cfg.MaxFeatures; m > 0 && m < numCoded {
		features = features[:m]
	}
	left := make([]float64, b.dim)
	right := make([]float64, b.dim)
	best, bestFeature, bestThreshold := math.Inf(-1), -1, 0.0
	for _, f := range features {
		slices.SortFunc(idx, func(a, c int) int { return cmp.Compare(b.codes[a][f], b.codes[c][f]) })
		clear(left)
		for k := 0; k < n-1; k++ {
			floats.Add(left, b.y[idx[k]])
			v, next := b.codes[idx[k]][f], b.codes[idx[k+1]][f]
			nl, nr := k+1, n-k-1
			if v == next || nl < b.cfg.MinSamplesLeaf || nr < b.cfg.MinSamplesLeaf {
				continue
			}
			floats.SubTo(right, total, left)
			score := floats.Dot(left, left)/float64(nl) + floats.Dot(right, right)/float64(nr)
			if score > best {
				best, bestFeature, bestThreshold = score, f, (float64(v)+float64(next))/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
