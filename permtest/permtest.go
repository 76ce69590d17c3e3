// Package permtest implements permutation-based significance testing for
// regression coefficients. The response vector is repeatedly shuffled, the
// model refit against the unchanged design matrix, and each original
// coefficient scored against the resulting permutation null.
package permtest

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	mfstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lfplab/neurostat/dataset"
	"github.com/lfplab/neurostat/formula"
	"github.com/lfplab/neurostat/regress"
)

// DefaultPermutations is the permutation count used when Options leaves
// NPermutations at zero.
const DefaultPermutations = 1000

// Options configures a permutation sweep.
type Options struct {
	// NPermutations is the number of independent response shuffles.
	// 0 means DefaultPermutations; negative counts are an error.
	NPermutations int

	// Seed seeds the master RNG; 0 means a time-based seed, so
	// reproducibility is the caller's responsibility.
	Seed int64

	// Workers bounds the number of concurrent refits; 0 means NumCPU.
	Workers int

	// Fitter is the coefficient backend; nil means regress.OLS.
	Fitter regress.Fitter
}

// CoefResult summarizes one coefficient against its permutation null.
// NullStd is the population standard deviation of the null draws. The
// p-value is the two-sided normal approximation 2*(1 - Phi(|z|)) from the
// null's first two moments, not an empirical rank p-value; NullLower and
// NullUpper (the empirical 2.5th and 97.5th null percentiles) are reported
// alongside for the rank-based view.
type CoefResult struct {
	Name      string
	Estimate  float64
	NullMean  float64
	NullStd   float64
	ZScore    float64
	PValue    float64
	NullLower float64
	NullUpper float64
}

// RegressionZScore expands the formula against the table and runs the
// permutation sweep on the resulting response and design matrix.
func RegressionZScore(tbl *dataset.Table, f *formula.Formula, opts Options) ([]CoefResult, error) {
	design, err := f.Build(tbl)
	if err != nil {
		return nil, err
	}
	return ZScore(design.Response, design.X, design.Names, opts)
}

// ZScore fits the original model once, then refits it against P independent
// uniform permutations of y (the design matrix never changes), and returns
// one summary per design-matrix column. names may be nil.
//
// Each permutation is a bijective rearrangement of the response values: all
// n values are preserved and only their order is scrambled, which is what
// makes the null a permutation null rather than a bootstrap. A coefficient
// whose null distribution has exactly zero variance is an error, never a
// silent division by zero.
func ZScore(y []float64, x *mat.Dense, names []string, opts Options) ([]CoefResult, error) {
	n, k := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("permtest: response has %d values, design matrix has %d rows", len(y), n)
	}
	if names != nil && len(names) != k {
		return nil, fmt.Errorf("permtest: %d names for %d design-matrix columns", len(names), k)
	}
	if opts.NPermutations < 0 {
		return nil, fmt.Errorf("permtest: permutation count must be positive, got %d", opts.NPermutations)
	}
	nPerm := opts.NPermutations
	if nPerm == 0 {
		nPerm = DefaultPermutations
	}
	fitter := opts.Fitter
	if fitter == nil {
		fitter = regress.OLS{}
	}

	original, err := fitter.Coefficients(y, x)
	if err != nil {
		return nil, err
	}
	if len(original) != k {
		return nil, fmt.Errorf("permtest: fitter returned %d coefficients for %d columns", len(original), k)
	}

	// Per-draw seeds fanned out from one master seed, so workers never
	// share RNG state and results do not depend on scheduling.
	masterSeed := opts.Seed
	if masterSeed == 0 {
		masterSeed = time.Now().UnixNano()
	}
	masterRng := rand.New(rand.NewSource(masterSeed))
	seeds := make([]int64, nPerm)
	for i := range seeds {
		seeds[i] = masterRng.Int63()
	}

	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > nPerm {
		numWorkers = nPerm
	}

	draws := make([][]float64, nPerm)
	jobs := make(chan int)
	errCh := make(chan error, nPerm)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	// Workers keep draining jobs after a failure so the feeder never
	// blocks; the first error wins once everything is joined.
	worker := func() {
		defer wg.Done()
		for b := range jobs {
			rng := rand.New(rand.NewSource(seeds[b]))
			permuted := permute(y, rng)
			coefs, ferr := fitter.Coefficients(permuted, x)
			if ferr != nil {
				errCh <- fmt.Errorf("permtest: draw %d: %w", b, ferr)
				continue
			}
			if len(coefs) != k {
				errCh <- fmt.Errorf("permtest: draw %d: fitter returned %d coefficients for %d columns", b, len(coefs), k)
				continue
			}
			draws[b] = coefs
		}
	}
	for w := 0; w < numWorkers; w++ {
		go worker()
	}
	go func() {
		for b := 0; b < nPerm; b++ {
			jobs <- b
		}
		close(jobs)
	}()
	wg.Wait()
	close(errCh)
	if ferr := <-errCh; ferr != nil {
		return nil, ferr
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	results := make([]CoefResult, k)
	col := make([]float64, nPerm)
	for j := 0; j < k; j++ {
		for b := range draws {
			col[b] = draws[b][j]
		}
		name := fmt.Sprintf("b%d", j)
		if names != nil {
			name = names[j]
		}

		nullMean := stat.Mean(col, nil)
		nullStd := math.Sqrt(stat.PopVariance(col, nil))
		if nullStd == 0 {
			return nil, fmt.Errorf("permtest: degenerate null for coefficient %q: zero variance across %d permutations", name, nPerm)
		}

		z := (original[j] - nullMean) / nullStd
		lower, perr := mfstats.Percentile(col, 2.5)
		if perr != nil {
			return nil, fmt.Errorf("permtest: null percentile for %q: %w", name, perr)
		}
		upper, perr := mfstats.Percentile(col, 97.5)
		if perr != nil {
			return nil, fmt.Errorf("permtest: null percentile for %q: %w", name, perr)
		}

		results[j] = CoefResult{
			Name:      name,
			Estimate:  original[j],
			NullMean:  nullMean,
			NullStd:   nullStd,
			ZScore:    z,
			PValue:    clampP(2 * (1 - normal.CDF(math.Abs(z)))),
			NullLower: lower,
			NullUpper: upper,
		}
	}
	return results, nil
}

// permute returns a uniformly random rearrangement of values: every input
// value appears exactly once in the output.
func permute(values []float64, rng *rand.Rand) []float64 {
	idx := rng.Perm(len(values))
	out := make([]float64, len(values))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

func clampP(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
