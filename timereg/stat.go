package timereg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StatFunc computes an arbitrary per-window statistic from a trials x
// window-length slice of the signal, returning one value per statistic.
// Every window must yield the same number of values.
type StatFunc func(window *mat.Dense) ([]float64, error)

// StatResult is the output of RunStat: one row of statistic values per
// window, with the window midpoint's millisecond timestamp.
type StatResult struct {
	// Values[w][s] is statistic s evaluated on window w.
	Values [][]float64
	// Times holds one millisecond timestamp per window.
	Times []float64
}

// RunStat applies an arbitrary statistic over the same sliding windows the
// regression driver uses, for time-resolved analyses that are not
// regressions (e.g. per-window variance or a decoding score).
func RunStat(timeseries *mat.Dense, winLen, slideLen int, samplingRate float64, fn StatFunc) (*StatResult, error) {
	if timeseries == nil {
		return nil, fmt.Errorf("timereg: timeseries not provided")
	}
	if fn == nil {
		return nil, fmt.Errorf("timereg: statistic function not provided")
	}
	if samplingRate <= 0 {
		return nil, fmt.Errorf("timereg: sampling rate must be positive, got %v", samplingRate)
	}
	nTrials, nSamples := timeseries.Dims()

	wins, err := SlidingWindows(nSamples, winLen, slideLen)
	if err != nil {
		return nil, err
	}

	msPerSample := 1000 / samplingRate
	res := &StatResult{
		Values: make([][]float64, len(wins)),
		Times:  make([]float64, len(wins)),
	}
	width := -1
	for w, win := range wins {
		slice := timeseries.Slice(0, nTrials, win.Start, win.Start+win.Len).(*mat.Dense)
		vals, err := fn(slice)
		if err != nil {
			return nil, fmt.Errorf("timereg: window %d: %w", w, err)
		}
		if width == -1 {
			width = len(vals)
		} else if len(vals) != width {
			return nil, fmt.Errorf("timereg: window %d produced %d values, window 0 produced %d", w, len(vals), width)
		}
		res.Values[w] = vals
		res.Times[w] = float64(win.Midpoint) * msPerSample
	}
	return res, nil
}
