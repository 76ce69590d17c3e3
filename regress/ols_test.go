package regress

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/lfplab/neurostat/dataset"
	"github.com/lfplab/neurostat/formula"
)

// almostEqual compares floats with tolerance.
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// designWithSlope builds an (intercept, x) design matrix.
func designWithSlope(x []float64) *mat.Dense {
	d := mat.NewDense(len(x), 2, nil)
	for i, v := range x {
		d.Set(i, 0, 1)
		d.Set(i, 1, v)
	}
	return d
}

func TestCoefficientsExactLine(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 1 + 2*v
	}

	coefs, err := OLS{}.Coefficients(y, designWithSlope(x))
	if err != nil {
		t.Fatalf("Coefficients returned error: %v", err)
	}
	if len(coefs) != 2 {
		t.Fatalf("got %d coefficients, want 2", len(coefs))
	}
	if !almostEqual(coefs[0], 1, 1e-8) {
		t.Errorf("intercept = %v, want 1", coefs[0])
	}
	if !almostEqual(coefs[1], 2, 1e-8) {
		t.Errorf("slope = %v, want 2", coefs[1])
	}
}

func TestFitPerfectFit(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 1 + 2*v
	}

	res, err := OLS{}.Fit(y, designWithSlope(x), []string{"Intercept", "x"})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	if res.DF != 3 {
		t.Errorf("DF = %v, want 3", res.DF)
	}
	if !almostEqual(res.Sigma2, 0, 1e-12) {
		t.Errorf("Sigma2 = %v, want 0", res.Sigma2)
	}
	// A perfect fit gives zero standard errors; nonzero coefficients are
	// then exact with p = 0.
	for j := range res.Coefs {
		if !almostEqual(res.StdErrs[j], 0, 1e-8) {
			t.Errorf("StdErrs[%d] = %v, want 0", j, res.StdErrs[j])
		}
		if res.PValues[j] > 1e-8 {
			t.Errorf("PValues[%d] = %v, want 0", j, res.PValues[j])
		}
	}
}

func TestFitNoisyProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n := 40
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		y[i] = 0.5 + 0.3*x[i] + rng.NormFloat64()
	}
	design := designWithSlope(x)

	res, err := OLS{}.Fit(y, design, []string{"Intercept", "x"})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	// Residuals are orthogonal to every design-matrix column.
	for j := 0; j < 2; j++ {
		dot := 0.0
		for i := 0; i < n; i++ {
			dot += res.Residuals[i] * design.At(i, j)
		}
		if !almostEqual(dot, 0, 1e-6) {
			t.Errorf("residuals not orthogonal to column %d: dot = %v", j, dot)
		}
	}

	for j := range res.Coefs {
		if res.StdErrs[j] <= 0 {
			t.Errorf("StdErrs[%d] = %v, want > 0", j, res.StdErrs[j])
		}
		if res.PValues[j] < 0 || res.PValues[j] > 1 {
			t.Errorf("PValues[%d] = %v outside [0, 1]", j, res.PValues[j])
		}
	}

	// The 95% CI sits symmetrically around the estimate.
	ci, err := res.ConfInt(0.05)
	if err != nil {
		t.Fatalf("ConfInt returned error: %v", err)
	}
	for j, bounds := range ci {
		if bounds[0] >= res.Coefs[j] || bounds[1] <= res.Coefs[j] {
			t.Errorf("CI %v does not bracket coefficient %v", bounds, res.Coefs[j])
		}
	}
	if _, err := res.ConfInt(1.5); err == nil {
		t.Error("ConfInt(1.5) should fail")
	}
}

func TestCoefficientsSingularDesign(t *testing.T) {
	// Two identical columns make X'X singular.
	x := mat.NewDense(5, 2, nil)
	for i := 0; i < 5; i++ {
		x.Set(i, 0, float64(i))
		x.Set(i, 1, float64(i))
	}
	y := []float64{1, 2, 3, 4, 5}

	if _, err := (OLS{}).Coefficients(y, x); err == nil {
		t.Error("singular design should fail")
	}
}

func TestCoefficientsShapeErrors(t *testing.T) {
	x := designWithSlope([]float64{0, 1, 2, 3})

	if _, err := (OLS{}).Coefficients([]float64{1, 2, 3}, x); err == nil {
		t.Error("response/design row mismatch should fail")
	}
	if _, err := (OLS{}).Coefficients([]float64{1}, designWithSlope([]float64{0})); err == nil {
		t.Error("underdetermined system should fail")
	}
}

func TestFitInsufficientDF(t *testing.T) {
	x := designWithSlope([]float64{0, 1})
	if _, err := (OLS{}).Fit([]float64{1, 2}, x, nil); err == nil {
		t.Error("n == k leaves no residual degrees of freedom")
	}
}

func TestFitFormula(t *testing.T) {
	tbl := dataset.New(6)
	if err := tbl.AddNumeric("y", []float64{1, 2, 3, 4, 5, 6.5}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddNumeric("x", []float64{0, 1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}

	f, err := formula.Parse("y ~ 1 + x")
	if err != nil {
		t.Fatal(err)
	}
	res, err := FitFormula(tbl, f)
	if err != nil {
		t.Fatalf("FitFormula returned error: %v", err)
	}

	if len(res.Coefs) != 2 {
		t.Fatalf("got %d coefficients, want 2", len(res.Coefs))
	}
	if res.Names[0] != "Intercept" || res.Names[1] != "x" {
		t.Errorf("names = %v", res.Names)
	}
	if res.Coefs[1] <= 0 {
		t.Errorf("slope = %v, want positive", res.Coefs[1])
	}
}
