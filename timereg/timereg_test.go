package timereg

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/lfplab/neurostat/dataset"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// signalWithSlope builds a trials x samples matrix where every sample is
// slope*x[i] plus noise, alongside the regressor table holding x.
func signalWithSlope(t *testing.T, rng *rand.Rand, x []float64, nSamples int, slope, noiseSD float64) (*mat.Dense, *dataset.Table) {
	t.Helper()
	sig := mat.NewDense(len(x), nSamples, nil)
	for i, v := range x {
		for s := 0; s < nSamples; s++ {
			sig.Set(i, s, slope*v+rng.NormFloat64()*noiseSD)
		}
	}
	tbl := dataset.New(len(x))
	if err := tbl.AddNumeric("x", x); err != nil {
		t.Fatal(err)
	}
	return sig, tbl
}

func TestRunPlainFit(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	x := make([]float64, 12)
	for i := range x {
		x[i] = float64(i + 1)
	}
	sig, tbl := signalWithSlope(t, rng, x, 12, 2.0, 0.1)

	res, err := Run(sig, tbl, Options{SamplingRate: 500})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(res.Times) != 12 {
		t.Fatalf("got %d timepoints, want 12", len(res.Times))
	}
	// At 500 Hz each sample is 2 ms; without smoothing the timestamp of
	// index t is t*2.
	if res.Times[10] != 20.0 {
		t.Errorf("Times[10] = %v, want 20", res.Times[10])
	}
	if len(res.Terms) != 2 || res.Terms[0] != "Intercept" || res.Terms[1] != "x" {
		t.Fatalf("terms = %v", res.Terms)
	}
	if len(res.Rows) != 24 {
		t.Fatalf("got %d rows, want 24", len(res.Rows))
	}

	for _, row := range res.Rows {
		if row.Term == "x" && !almostEqual(row.Estimate, 2.0, 0.1) {
			t.Errorf("slope at %v ms = %v, want near 2", row.TimeMS, row.Estimate)
		}
		if row.StdErr < 0 || math.IsNaN(row.StdErr) {
			t.Errorf("plain fit should populate StdErr, got %v", row.StdErr)
		}
		if !math.IsNaN(row.ZScore) || !math.IsNaN(row.NullStd) {
			t.Errorf("plain fit should leave null fields NaN, got z=%v std=%v", row.ZScore, row.NullStd)
		}
		if row.PValue < 0 || row.PValue > 1 {
			t.Errorf("p = %v outside [0, 1]", row.PValue)
		}
	}
}

func TestRunSmoothedStandardized(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	x := make([]float64, 20)
	for i := range x {
		x[i] = rng.NormFloat64()*2 + 3
	}
	sig, tbl := signalWithSlope(t, rng, x, 100, 1.5, 0.5)

	res, err := Run(sig, tbl, Options{
		WinLen:       10,
		SlideLen:     10,
		Standardize:  true,
		Smooth:       true,
		SamplingRate: 500,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// 100 samples with 10/10 windows give 10 timepoints at midpoints
	// 5, 15, ..., 95, i.e. 10 ms, 30 ms, ..., 190 ms at 500 Hz.
	if len(res.Times) != 10 {
		t.Fatalf("got %d timepoints, want 10", len(res.Times))
	}
	for w, ts := range res.Times {
		if want := float64(w*10+5) * 2; ts != want {
			t.Errorf("Times[%d] = %v, want %v", w, ts, want)
		}
	}
	if len(res.Rows) != 20 {
		t.Fatalf("got %d rows, want 20 (10 windows x 2 terms)", len(res.Rows))
	}

	// Each (term, timestamp) pair appears exactly once.
	seen := map[string]bool{}
	for _, row := range res.Rows {
		key := fmt.Sprintf("%s@%v", row.Term, row.TimeMS)
		if seen[key] {
			t.Errorf("duplicate row %s", key)
		}
		seen[key] = true
	}

	// Standardizing x to (x-mean)/(2*sd) rescales the slope by 2*sd(x).
	sd := math.Sqrt(stat.PopVariance(x, nil))
	want := 1.5 * 2 * sd
	for _, row := range res.Rows {
		if row.Term == "x" && !almostEqual(row.Estimate, want, 0.5) {
			t.Errorf("standardized slope at %v ms = %v, want near %v", row.TimeMS, row.Estimate, want)
		}
	}
}

func TestRunPermuteDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	x := make([]float64, 12)
	for i := range x {
		x[i] = float64(i + 1)
	}
	sig, tbl := signalWithSlope(t, rng, x, 5, 0, 1.0)

	opts := Options{
		Permute:       true,
		NPermutations: 100,
		Seed:          5,
		SamplingRate:  500,
		Workers:       2,
	}
	first, err := Run(sig, tbl, opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(sig, tbl, opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first.Rows) != len(second.Rows) {
		t.Fatalf("row counts differ: %d vs %d", len(first.Rows), len(second.Rows))
	}
	for i := range first.Rows {
		a, b := first.Rows[i], second.Rows[i]
		if a.Estimate != b.Estimate || a.ZScore != b.ZScore || a.PValue != b.PValue {
			t.Errorf("row %d differs across seeded runs: %+v vs %+v", i, a, b)
		}
	}

	for _, row := range first.Rows {
		if !math.IsNaN(row.StdErr) {
			t.Errorf("permutation mode should leave StdErr NaN, got %v", row.StdErr)
		}
		if row.NullStd <= 0 {
			t.Errorf("null std = %v at %v ms", row.NullStd, row.TimeMS)
		}
		if row.PValue < 0 || row.PValue > 1 {
			t.Errorf("p = %v outside [0, 1]", row.PValue)
		}
	}
}

func TestRunValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := []float64{1, 2, 3, 4, 5, 6}
	sig, tbl := signalWithSlope(t, rng, x, 8, 1, 0.5)

	if _, err := Run(nil, tbl, Options{SamplingRate: 500}); err == nil {
		t.Error("nil timeseries should fail")
	}
	if _, err := Run(sig, nil, Options{SamplingRate: 500}); err == nil {
		t.Error("nil regressors should fail")
	}
	if _, err := Run(sig, tbl, Options{}); err == nil {
		t.Error("missing sampling rate should fail")
	}
	if _, err := Run(sig, tbl, Options{SamplingRate: 500, NPermutations: -3}); err == nil {
		t.Error("negative permutation count should fail")
	}
	if _, err := Run(sig, tbl, Options{SamplingRate: 500, Smooth: true, WinLen: 100, SlideLen: 10}); err == nil {
		t.Error("window longer than the series should fail")
	}

	short := dataset.New(3)
	if err := short.AddNumeric("x", []float64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(sig, short, Options{SamplingRate: 500}); err == nil {
		t.Error("trial-count mismatch should fail")
	}

	reserved := dataset.New(6)
	if err := reserved.AddNumeric("sig", x); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(sig, reserved, Options{SamplingRate: 500}); err == nil {
		t.Error("regressor named sig should fail")
	}
}

func TestRunStat(t *testing.T) {
	// Every sample of trial i is i+1, so the grand mean of each window
	// slice is the mean of 1..3.
	sig := mat.NewDense(3, 20, nil)
	for i := 0; i < 3; i++ {
		for s := 0; s < 20; s++ {
			sig.Set(i, s, float64(i+1))
		}
	}

	grandMean := func(w *mat.Dense) ([]float64, error) {
		r, c := w.Dims()
		sum := 0.0
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				sum += w.At(i, j)
			}
		}
		return []float64{sum / float64(r*c)}, nil
	}

	res, err := RunStat(sig, 5, 5, 500, grandMean)
	if err != nil {
		t.Fatalf("RunStat returned error: %v", err)
	}
	if len(res.Values) != 4 || len(res.Times) != 4 {
		t.Fatalf("got %d windows, want 4", len(res.Values))
	}
	for w, vals := range res.Values {
		if len(vals) != 1 || !almostEqual(vals[0], 2, 1e-12) {
			t.Errorf("window %d values = %v, want [2]", w, vals)
		}
	}
	// Midpoints 2, 7, 12, 17 at 500 Hz.
	if res.Times[1] != 14 {
		t.Errorf("Times[1] = %v, want 14", res.Times[1])
	}
}

func TestRunStatErrors(t *testing.T) {
	sig := mat.NewDense(2, 10, nil)

	if _, err := RunStat(nil, 5, 5, 500, func(*mat.Dense) ([]float64, error) { return nil, nil }); err == nil {
		t.Error("nil timeseries should fail")
	}
	if _, err := RunStat(sig, 5, 5, 500, nil); err == nil {
		t.Error("nil statistic should fail")
	}
	if _, err := RunStat(sig, 5, 5, 0, func(*mat.Dense) ([]float64, error) { return nil, nil }); err == nil {
		t.Error("zero sampling rate should fail")
	}

	fail := func(*mat.Dense) ([]float64, error) { return nil, fmt.Errorf("boom") }
	if _, err := RunStat(sig, 5, 5, 500, fail); err == nil {
		t.Error("statistic error should propagate")
	}

	n := 0
	ragged := func(*mat.Dense) ([]float64, error) {
		n++
		return make([]float64, n), nil
	}
	if _, err := RunStat(sig, 5, 5, 500, ragged); err == nil {
		t.Error("inconsistent statistic width should fail")
	}
}

func TestWriteCSV(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	sig, tbl := signalWithSlope(t, rng, x, 4, 1, 0.5)

	res, err := Run(sig, tbl, Options{SamplingRate: 500})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := res.WriteCSV(path); err != nil {
		t.Fatalf("WriteCSV returned error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != len(res.Rows)+1 {
		t.Fatalf("got %d records, want %d rows plus header", len(records), len(res.Rows))
	}
	if records[0][0] != "term" || records[0][1] != "ts_ms" || records[0][7] != "p_value" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][0] != "Intercept" {
		t.Errorf("first data row term = %q", records[1][0])
	}
	// Null fields are NaN in plain-fit mode.
	if records[1][4] != "NaN" {
		t.Errorf("null_mean field = %q, want NaN", records[1][4])
	}
}
