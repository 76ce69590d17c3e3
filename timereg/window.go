// Package timereg runs a regression independently at every time sample of a
// trials x time signal matrix, optionally smoothing the matrix over a
// sliding window first, and collects the per-timepoint fits into a single
// time-indexed result table.
package timereg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lfplab/neurostat/dataset"
)

// Window is one sliding-window slice over the sample-index axis.
type Window struct {
	// Start is the first sample index; the window covers
	// [Start, Start+Len).
	Start int
	Len   int
	// Midpoint is ceil(mean of the window's sample indices); timestamps
	// of smoothed series are taken at window midpoints.
	Midpoint int
}

// SlidingWindows enumerates windows of length winLen advanced by slideLen
// over nSamples sample indices. The number of windows is
// floor((nSamples-winLen)/slideLen) + 1.
func SlidingWindows(nSamples, winLen, slideLen int) ([]Window, error) {
	if winLen < 1 {
		return nil, fmt.Errorf("timereg: window length must be >= 1, got %d", winLen)
	}
	if slideLen < 1 {
		return nil, fmt.Errorf("timereg: slide length must be >= 1, got %d", slideLen)
	}
	if winLen > nSamples {
		return nil, fmt.Errorf("timereg: window length %d exceeds series length %d", winLen, nSamples)
	}

	count := (nSamples-winLen)/slideLen + 1
	wins := make([]Window, count)
	for w := 0; w < count; w++ {
		start := w * slideLen
		// Mean of the consecutive indices start..start+winLen-1.
		mid := int(math.Ceil(float64(2*start+winLen-1) / 2))
		wins[w] = Window{Start: start, Len: winLen, Midpoint: mid}
	}
	return wins, nil
}

// Smooth reduces a trials x time matrix to trials x windows, each cell the
// mean of the trial's samples inside the window, ignoring missing (NaN)
// values. A window with no observed samples for a trial yields NaN.
func Smooth(timeseries *mat.Dense, wins []Window) *mat.Dense {
	nTrials, _ := timeseries.Dims()
	out := mat.NewDense(nTrials, len(wins), nil)
	buf := make([]float64, 0)
	for w, win := range wins {
		for i := 0; i < nTrials; i++ {
			buf = buf[:0]
			for s := win.Start; s < win.Start+win.Len; s++ {
				buf = append(buf, timeseries.At(i, s))
			}
			out.Set(i, w, dataset.NaNMean(buf))
		}
	}
	return out
}
