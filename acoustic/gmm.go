package acoustic

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// errNotPositiveDefinite is returned when a covariance cannot be factorized.
var errNotPositiveDefinite = errors.New("acoustic: covariance is not positive definite")

// Gaussian is a single multivariate Gaussian component with full covariance.
// A diagonal model stores a covariance with zero off-diagonal entries.
type Gaussian struct {
	Mean       []float64 // [dim]
	Covariance []float64 // [dim*dim] row-major, symmetric
	LogWeight  float64   // log mixture weight

	// Pre-computed values
	logNormConst float64
	chol         mat.Cholesky
	lower        mat.TriDense
}

// Precompute factorizes the covariance and caches the normalization constant.
// Must be called after updating Mean, Covariance, or LogWeight.
func (g *Gaussian) Precompute() error {
	dim := len(g.Mean)
	if len(g.Covariance) != dim*dim {
		return fmt.Errorf("acoustic: covariance has %d entries, want %d", len(g.Covariance), dim*dim)
	}
	sym := mat.NewSymDense(dim, append([]float64(nil), g.Covariance...))
	if ok := g.chol.Factorize(sym); !ok {
		return errNotPositiveDefinite
	}
	g.chol.LTo(&g.lower)
	g.logNormConst = float64(dim)/2.0*math.Log(2*math.Pi) + 0.5*g.chol.LogDet()
	return nil
}

// LogProb computes the log density of observation x under this Gaussian,
// excluding the mixture weight.
func (g *Gaussian) LogProb(x []float64) float64 {
	diff := vek.Sub(x, g.Mean)
	var z mat.VecDense
	if err := g.chol.SolveVecTo(&z, mat.NewVecDense(len(diff), diff)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return math.Inf(-1)
		}
	}
	maha := vek.Dot(diff, z.RawVector().Data)
	return -0.5*maha - g.logNormConst
}

// GMM is a Gaussian Mixture Model over fixed-length vectors.
type GMM struct {
	Components []Gaussian
	Dim        int
}

// NewGMMWithParams creates a GMM from explicit parameters and precomputes it.
// covariances holds one row-major dim×dim matrix per component.
func NewGMMWithParams(means, covariances [][]float64, logWeights []float64) (*GMM, error) {
	k := len(means)
	if k == 0 || len(covariances) != k || len(logWeights) != k {
		return nil, fmt.Errorf("acoustic: inconsistent GMM parameters: %d means, %d covariances, %d weights",
			len(means), len(covariances), len(logWeights))
	}
	dim := len(means[0])
	g := &GMM{Components: make([]Gaussian, k), Dim: dim}
	for i := range k {
		if len(means[i]) != dim {
			return nil, fmt.Errorf("acoustic: component %d mean has length %d, want %d", i, len(means[i]), dim)
		}
		g.Components[i] = Gaussian{
			Mean:       append([]float64(nil), means[i]...),
			Covariance: append([]float64(nil), covariances[i]...),
			LogWeight:  logWeights[i],
		}
	}
	if err := g.Precompute(); err != nil {
		return nil, err
	}
	return g, nil
}

// Precompute precomputes every component.
func (g *GMM) Precompute() error {
	for i := range g.Components {
		if err := g.Components[i].Precompute(); err != nil {
			return fmt.Errorf("component %d: %w", i, err)
		}
	}
	return nil
}

// LogProb computes log p(x) = log sum_k w_k N(x; mu_k, Sigma_k).
func (g *GMM) LogProb(x []float64) float64 {
	if len(g.Components) == 1 {
		c := &g.Components[0]
		return c.LogWeight + c.LogProb(x)
	}
	lp := make([]float64, len(g.Components))
	for i := range g.Components {
		c := &g.Components[i]
		lp[i] = c.LogWeight + c.LogProb(x)
	}
	return floats.LogSumExp(lp)
}

// Weights returns the linear mixture weights.
func (g *GMM) Weights() []float64 {
	w := make([]float64, len(g.Components))
	for i := range g.Components {
		w[i] = math.Exp(g.Components[i].LogWeight)
	}
	return w
}

// Sample draws one vector: a component by weight, then mean + L·z with z
// standard normal and L the covariance's Cholesky factor.
func (g *GMM) Sample(src rand.Source) []float64 {
	k := 0
	if len(g.Components) > 1 {
		k = int(distuv.NewCategorical(g.Weights(), src).Rand())
	}
	c := &g.Components[k]
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	z := make([]float64, g.Dim)
	for i := range z {
		z[i] = normal.Rand()
	}
	var y mat.VecDense
	y.MulVec(&c.lower, mat.NewVecDense(g.Dim, z))
	return vek.Add(c.Mean, y.RawVector().Data)
}

// FitConfig holds EM training parameters for a single GMM.
type FitConfig struct {
	Mixtures      int     // number of mixture components (reduced to the sample count if larger)
	MaxIterations int     // EM iteration cap
	Tolerance     float64 // convergence threshold on the mean log-likelihood
	RegCovar      float64 // added to covariance diagonals
	Diagonal      bool    // keep only covariance diagonals
}

// DefaultFitConfig returns the single-component full-covariance setup.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Mixtures:      1,
		MaxIterations: 100,
		Tolerance:     1e-3,
		RegCovar:      1e-6,
	}
}

// epsilon is the float64 machine epsilon; 10·epsilon keeps empty components
// from dividing by zero.
var epsilon = math.Nextafter(1, 2) - 1

// maxRegRetries bounds how many times the covariance floor is raised when a
// component fails to factorize.
const maxRegRetries = 6

// FitGMM fits a GMM to data with expectation maximization. Initial
// responsibilities are hard assignments to k-means++ seeded samples.
func FitGMM(data [][]float64, cfg FitConfig, src rand.Source) (*GMM, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("acoustic: no training samples")
	}
	if cfg.Mixtures < 1 {
		return nil, fmt.Errorf("acoustic: mixtures must be >= 1, got %d", cfg.Mixtures)
	}
	dim := len(data[0])
	x := mat.NewDense(n, dim, nil)
	for i, row := range data {
		if len(row) != dim {
			return nil, fmt.Errorf("acoustic: sample %d has length %d, want %d", i, len(row), dim)
		}
		x.SetRow(i, row)
	}
	k := min(cfg.Mixtures, n)

	resp := initResponsibilities(data, k, src)
	g := &GMM{Components: make([]Gaussian, k), Dim: dim}
	if err := g.mStep(x, resp, cfg); err != nil {
		return nil, err
	}
	if k == 1 {
		// A single component is the closed-form ML estimate.
		return g, nil
	}

	prev := math.Inf(-1)
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		ll := g.eStep(data, resp)
		if err := g.mStep(x, resp, cfg); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		if math.Abs(ll-prev) < cfg.Tolerance {
			break
		}
		prev = ll
	}
	return g, nil
}

func initResponsibilities(data [][]float64, k int, src rand.Source) [][]float64 {
	n := len(data)
	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}
	if k == 1 {
		for i := range resp {
			resp[i][0] = 1
		}
		return resp
	}
	centers := seedCenters(data, k, src)
	for i, row := range data {
		best, bestDist := 0, math.Inf(1)
		for j, c := range centers {
			if d := floats.Distance(row, data[c], 2); d < bestDist {
				best, bestDist = j, d
			}
		}
		resp[i][best] = 1
	}
	return resp
}

// seedCenters picks k sample indices with k-means++ seeding: each further
// center is drawn with probability proportional to its squared distance to
// the nearest center chosen so far.
func seedCenters(data [][]float64, k int, src rand.Source) []int {
	rng := rand.New(src)
	n := len(data)
	centers := []int{rng.IntN(n)}
	d2 := make([]float64, n)
	for i, row := range data {
		d := floats.Distance(row, data[centers[0]], 2)
		d2[i] = d * d
	}
	for len(centers) < k {
		var next int
		if floats.Sum(d2) > 0 {
			next = int(distuv.NewCategorical(d2, src).Rand())
		} else {
			next = rng.IntN(n)
		}
		centers = append(centers, next)
		for i, row := range data {
			d := floats.Distance(row, data[next], 2)
			d2[i] = min(d2[i], d*d)
		}
	}
	return centers
}

// eStep fills resp with posterior responsibilities and returns the mean
// log-likelihood of the data.
func (g *GMM) eStep(data [][]float64, resp [][]float64) float64 {
	total := 0.0
	for i, row := range data {
		r := resp[i]
		for j := range g.Components {
			c := &g.Components[j]
			r[j] = c.LogWeight + c.LogProb(row)
		}
		lse := floats.LogSumExp(r)
		for j := range r {
			r[j] = math.Exp(r[j] - lse)
		}
		total += lse
	}
	return total / float64(len(data))
}

// mStep re-estimates weights, means and covariances from responsibilities.
func (g *GMM) mStep(x *mat.Dense, resp [][]float64, cfg FitConfig) error {
	n, dim := x.Dims()
	col := make([]float64, n)
	sqrtW := make([]float64, n)
	centred := mat.NewDense(n, dim, nil)
	for j := range g.Components {
		for i := range n {
			col[i] = resp[i][j]
		}
		nk := floats.Sum(col) + 10*epsilon

		var mean mat.VecDense
		mean.MulVec(x.T(), mat.NewVecDense(n, col))
		mean.ScaleVec(1/nk, &mean)
		mu := mean.RawVector().Data

		for i := range n {
			sqrtW[i] = math.Sqrt(col[i])
			row := centred.RawRowView(i)
			copy(row, x.RawRowView(i))
			floats.Sub(row, mu)
			floats.Scale(sqrtW[i], row)
		}
		var cov mat.SymDense
		cov.SymOuterK(1/nk, centred.T())

		c := &g.Components[j]
		c.Mean = append(c.Mean[:0], mu...)
		c.LogWeight = math.Log(nk / float64(n))
		c.Covariance = c.Covariance[:0]
		for a := range dim {
			for b := range dim {
				v := cov.At(a, b)
				if cfg.Diagonal && a != b {
					v = 0
				}
				c.Covariance = append(c.Covariance, v)
			}
		}
		if err := c.regularize(cfg.RegCovar); err != nil {
			return fmt.Errorf("component %d: %w", j, err)
		}
	}
	return nil
}

// regularize adds reg to the covariance diagonal and precomputes, raising the
// floor tenfold each time the factorization fails.
func (g *Gaussian) regularize(reg float64) error {
	dim := len(g.Mean)
	if reg <= 0 {
		reg = 1e-12
	}
	added := 0.0
	for range maxRegRetries {
		for d := range dim {
			g.Covariance[d*dim+d] += reg - added
		}
		added = reg
		err := g.Precompute()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errNotPositiveDefinite) {
			return err
		}
		reg *= 10
	}
	return errNotPositiveDefinite
}
