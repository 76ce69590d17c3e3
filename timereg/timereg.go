package timereg

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/lfplab/neurostat/dataset"
	"github.com/lfplab/neurostat/formula"
	"github.com/lfplab/neurostat/permtest"
	"github.com/lfplab/neurostat/regress"
)

// DefaultPermutations is the per-timepoint permutation count used when
// Options.Permute is set and NPermutations is zero.
const DefaultPermutations = 500

// Default smoothing geometry, sized for high-frequency activity sampled at
// 500 Hz.
const (
	DefaultWinLen   = 100
	DefaultSlideLen = 25
)

// responseColumn is the reserved column name the driver writes the signal
// into at each time index.
const responseColumn = "sig"

// Options configures a time-resolved regression run.
type Options struct {
	// WinLen and SlideLen define the smoothing window in samples; used
	// only when Smooth is set. Zero selects DefaultWinLen/DefaultSlideLen.
	WinLen   int
	SlideLen int

	// Standardize rescales each regressor column to
	// (x - mean) / (2 * std) before fitting.
	Standardize bool

	// Smooth averages the signal over sliding windows before the
	// per-timepoint loop; timestamps then refer to window midpoints.
	Smooth bool

	// Permute scores each timepoint's coefficients against a permutation
	// null instead of reporting plain OLS standard errors.
	Permute bool

	// SamplingRate in samples per second; converts time indices to
	// milliseconds. Required.
	SamplingRate float64

	// NPermutations is the per-timepoint permutation count when Permute
	// is set. 0 means DefaultPermutations.
	NPermutations int

	// Seed seeds the per-timepoint permutation RNGs; 0 means time-based.
	Seed int64

	// Workers bounds the number of concurrently fitted timepoints;
	// 0 means NumCPU.
	Workers int
}

// Coef is one (coefficient, time index) row of the result table. StdErr is
// populated by plain fits and NaN under permutation; NullMean, NullStd and
// ZScore are populated under permutation and NaN otherwise.
type Coef struct {
	Term     string
	TimeMS   float64
	Estimate float64
	StdErr   float64
	NullMean float64
	NullStd  float64
	ZScore   float64
	PValue   float64
}

// Result is the concatenated per-timepoint fit table. Rows are ordered by
// time index, then by design-matrix column; every analyzed time index
// contributes exactly one row per coefficient.
type Result struct {
	Rows []Coef
	// Times holds one millisecond timestamp per analyzed time index.
	Times []float64
	// Terms holds the design-matrix column names, in row order within
	// each time block.
	Terms []string
}

// Run fits "sig ~ 1 + <regressor columns>" independently at every time
// index of the (optionally smoothed) signal. timeseries is trials x time;
// regressors has one row per trial. Each iteration works on a fresh copy of
// the regressor table with the response column replaced, so no state leaks
// between timepoints and the loop parallelizes safely.
func Run(timeseries *mat.Dense, regressors *dataset.Table, opts Options) (*Result, error) {
	if timeseries == nil {
		return nil, fmt.Errorf("timereg: timeseries not provided")
	}
	nTrials, nSamples := timeseries.Dims()
	if regressors == nil || regressors.NumCols() == 0 {
		return nil, fmt.Errorf("timereg: regressors not provided")
	}
	if regressors.NumRows() != nTrials {
		return nil, fmt.Errorf("timereg: regressors have %d rows, timeseries has %d trials", regressors.NumRows(), nTrials)
	}
	if regressors.HasColumn(responseColumn) {
		return nil, fmt.Errorf("timereg: regressor column name %q is reserved for the response", responseColumn)
	}
	if opts.SamplingRate <= 0 {
		return nil, fmt.Errorf("timereg: sampling rate must be positive, got %v", opts.SamplingRate)
	}
	if opts.NPermutations < 0 {
		return nil, fmt.Errorf("timereg: permutation count must be positive, got %d", opts.NPermutations)
	}

	regs := regressors
	if opts.Standardize {
		var err error
		regs, err = regressors.Standardized()
		if err != nil {
			return nil, fmt.Errorf("timereg: %w", err)
		}
	}

	// Reduce the signal and fix the midpoint of each analyzed index.
	sig := timeseries
	midpoints := make([]int, nSamples)
	for t := range midpoints {
		midpoints[t] = t
	}
	if opts.Smooth {
		winLen := opts.WinLen
		if winLen == 0 {
			winLen = DefaultWinLen
		}
		slideLen := opts.SlideLen
		if slideLen == 0 {
			slideLen = DefaultSlideLen
		}
		wins, err := SlidingWindows(nSamples, winLen, slideLen)
		if err != nil {
			return nil, err
		}
		sig = Smooth(timeseries, wins)
		midpoints = make([]int, len(wins))
		for w, win := range wins {
			midpoints[w] = win.Midpoint
		}
	}
	_, nIndices := sig.Dims()

	// One formula for every time index.
	f := formula.ForRegressors(responseColumn, regs)

	nPerm := opts.NPermutations
	if nPerm == 0 {
		nPerm = DefaultPermutations
	}

	// Per-timepoint seeds from one master seed, so a fixed Options.Seed
	// reproduces the whole run regardless of scheduling.
	var seeds []int64
	if opts.Permute {
		masterSeed := opts.Seed
		if masterSeed == 0 {
			masterSeed = time.Now().UnixNano()
		}
		masterRng := rand.New(rand.NewSource(masterSeed))
		seeds = make([]int64, nIndices)
		for i := range seeds {
			seeds[i] = masterRng.Int63()
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	blocks := make([][]Coef, nIndices)
	msPerSample := 1000 / opts.SamplingRate

	var g errgroup.Group
	g.SetLimit(workers)
	for t := 0; t < nIndices; t++ {
		t := t
		g.Go(func() error {
			col := make([]float64, nTrials)
			mat.Col(col, t, sig)
			tblT, err := regs.WithNumeric(responseColumn, col)
			if err != nil {
				return fmt.Errorf("timereg: index %d: %w", t, err)
			}

			timeMS := float64(midpoints[t]) * msPerSample
			if opts.Permute {
				res, err := permtest.RegressionZScore(tblT, f, permtest.Options{
					NPermutations: nPerm,
					Seed:          seeds[t],
					Workers:       1,
				})
				if err != nil {
					return fmt.Errorf("timereg: index %d: %w", t, err)
				}
				block := make([]Coef, len(res))
				for j, r := range res {
					block[j] = Coef{
						Term:     r.Name,
						TimeMS:   timeMS,
						Estimate: r.Estimate,
						StdErr:   math.NaN(),
						NullMean: r.NullMean,
						NullStd:  r.NullStd,
						ZScore:   r.ZScore,
						PValue:   r.PValue,
					}
				}
				blocks[t] = block
				return nil
			}

			fit, err := regress.FitFormula(tblT, f)
			if err != nil {
				return fmt.Errorf("timereg: index %d: %w", t, err)
			}
			block := make([]Coef, len(fit.Coefs))
			for j := range fit.Coefs {
				block[j] = Coef{
					Term:     fit.Names[j],
					TimeMS:   timeMS,
					Estimate: fit.Coefs[j],
					StdErr:   fit.StdErrs[j],
					NullMean: math.NaN(),
					NullStd:  math.NaN(),
					ZScore:   math.NaN(),
					PValue:   fit.PValues[j],
				}
			}
			blocks[t] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Times: make([]float64, nIndices)}
	for t, block := range blocks {
		res.Times[t] = float64(midpoints[t]) * msPerSample
		if t == 0 {
			res.Terms = make([]string, len(block))
			for j, c := range block {
				res.Terms[j] = c.Term
			}
		}
		res.Rows = append(res.Rows, block...)
	}
	return res, nil
}
