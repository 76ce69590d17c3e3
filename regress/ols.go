package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lfplab/neurostat/dataset"
	"github.com/lfplab/neurostat/formula"
)

// OLS is the ordinary least-squares backend. The zero value is ready to use.
type OLS struct{}

// OLSResult holds a full OLS fit: one entry per design-matrix column in
// Names, Coefs, StdErrs, TValues and PValues.
type OLSResult struct {
	Names     []string
	Coefs     []float64
	StdErrs   []float64
	TValues   []float64
	PValues   []float64
	Residuals []float64
	// DF is the residual degrees of freedom (observations minus columns).
	DF     float64
	Sigma2 float64
}

// Coefficients solves the normal equations B = (X'X)^(-1) X'y. A singular
// or ill-conditioned design is an error: rank deficiency is a caller
// problem, never silently pseudo-inverted away.
func (OLS) Coefficients(y []float64, x *mat.Dense) ([]float64, error) {
	n, k := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("ols: response has %d values, design matrix has %d rows", len(y), n)
	}
	if k == 0 {
		return nil, fmt.Errorf("ols: design matrix has no columns")
	}
	if n < k {
		return nil, fmt.Errorf("ols: %d observations cannot identify %d coefficients", n, k)
	}

	xtxInv, err := invXtX(x)
	if err != nil {
		return nil, err
	}

	yVec := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yVec)

	var b mat.VecDense
	b.MulVec(xtxInv, &xty)

	coefs := make([]float64, k)
	for j := 0; j < k; j++ {
		coefs[j] = b.AtVec(j)
	}
	return coefs, nil
}

// Fit runs a full OLS fit, returning standard errors from sigma^2 (X'X)^(-1)
// and two-sided t-test p-values. names labels the design-matrix columns and
// may be nil.
func (o OLS) Fit(y []float64, x *mat.Dense, names []string) (*OLSResult, error) {
	n, k := x.Dims()
	if names != nil && len(names) != k {
		return nil, fmt.Errorf("ols: %d names for %d design-matrix columns", len(names), k)
	}
	if n-k <= 0 {
		return nil, fmt.Errorf("ols: insufficient degrees of freedom: %d observations, %d coefficients", n, k)
	}

	coefs, err := o.Coefficients(y, x)
	if err != nil {
		return nil, err
	}

	// Residuals and residual variance.
	var yhat mat.VecDense
	yhat.MulVec(x, mat.NewVecDense(k, coefs))
	resid := make([]float64, n)
	rss := 0.0
	for i := 0; i < n; i++ {
		resid[i] = y[i] - yhat.AtVec(i)
		rss += resid[i] * resid[i]
	}
	df := float64(n - k)
	sigma2 := rss / df

	xtxInv, err := invXtX(x)
	if err != nil {
		return nil, err
	}

	if names == nil {
		names = make([]string, k)
		for j := range names {
			names[j] = fmt.Sprintf("b%d", j)
		}
	}

	res := &OLSResult{
		Names:     append([]string(nil), names...),
		Coefs:     coefs,
		StdErrs:   make([]float64, k),
		TValues:   make([]float64, k),
		PValues:   make([]float64, k),
		Residuals: resid,
		DF:        df,
		Sigma2:    sigma2,
	}

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	for j := 0; j < k; j++ {
		se := math.Sqrt(sigma2 * xtxInv.At(j, j))
		res.StdErrs[j] = se
		if se == 0 {
			// Perfect fit: the coefficient is exact.
			if coefs[j] == 0 {
				res.TValues[j] = 0
				res.PValues[j] = 1
			} else {
				res.TValues[j] = math.Inf(sign(coefs[j]))
				res.PValues[j] = 0
			}
			continue
		}
		t := coefs[j] / se
		res.TValues[j] = t
		res.PValues[j] = clampP(2 * (1 - tDist.CDF(math.Abs(t))))
	}
	return res, nil
}

// FitFormula expands the formula against the table and fits OLS on the
// resulting response and design matrix.
func FitFormula(tbl *dataset.Table, f *formula.Formula) (*OLSResult, error) {
	design, err := f.Build(tbl)
	if err != nil {
		return nil, err
	}
	return OLS{}.Fit(design.Response, design.X, design.Names)
}

// ConfInt returns the two-sided (1-alpha) confidence interval for each
// coefficient, based on the t distribution with the fit's residual df.
func (r *OLSResult) ConfInt(alpha float64) ([][2]float64, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("ols: alpha %v outside (0, 1)", alpha)
	}
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: r.DF}
	q := tDist.Quantile(1 - alpha/2)
	out := make([][2]float64, len(r.Coefs))
	for j, b := range r.Coefs {
		half := q * r.StdErrs[j]
		out[j] = [2]float64{b - half, b + half}
	}
	return out, nil
}

func invXtX(x *mat.Dense) (*mat.Dense, error) {
	var xtx mat.Dense
	xtx.Mul(x.T(), x)

	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("ols: design matrix is singular or ill-conditioned: %v", err)
	}
	return &inv, nil
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

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
