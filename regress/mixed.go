package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lfplab/neurostat/dataset"
)

// RandomInterceptOptions configures the EM fit. Zero values select the
// defaults.
type RandomInterceptOptions struct {
	MaxIter int     // default 1000
	Tol     float64 // relative convergence tolerance, default 1e-8
}

// RandomInterceptResult is the fit of y_ij = mu + b_i + e_ij with
// b_i ~ N(0, GroupVar) and e_ij ~ N(0, ResidVar). Intercept is the
// fixed-effect grand mean; CILower/CIUpper bound it at the 95% level.
type RandomInterceptResult struct {
	Intercept float64
	StdErr    float64
	CILower   float64
	CIUpper   float64
	GroupVar  float64
	ResidVar  float64
	// Groups is the number of distinct grouping levels used in the fit.
	Groups     int
	Obs        int
	Iterations int
}

// FitRandomIntercept tests whether the grand mean of a per-unit measure
// (e.g. an electrode-level effect) differs from zero while treating the
// grouping column (e.g. participant) as a random effect. A plain t-test
// over all units would let a group that contributes many units dominate;
// the random intercept reweights so the question becomes whether the
// effect is consistent across groups.
//
// Rows with a NaN predictor or empty group label are dropped. The model is
// fit by EM on the two variance components with GLS updates of the
// intercept; a fit that does not converge within MaxIter is an error.
func FitRandomIntercept(tbl *dataset.Table, predictor, group string, opts RandomInterceptOptions) (*RandomInterceptResult, error) {
	values, err := tbl.Numeric(predictor)
	if err != nil {
		return nil, fmt.Errorf("mixed: predictor: %w", err)
	}
	labels, err := tbl.Labels(group)
	if err != nil {
		return nil, fmt.Errorf("mixed: grouping column: %w", err)
	}

	kept := make([]float64, 0, len(values))
	keptGroups := make([]string, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || labels[i] == "" {
			continue
		}
		kept = append(kept, v)
		keptGroups = append(keptGroups, labels[i])
	}
	return fitRandomIntercept(kept, keptGroups, opts)
}

func fitRandomIntercept(values []float64, groups []string, opts RandomInterceptOptions) (*RandomInterceptResult, error) {
	if len(values) != len(groups) {
		return nil, fmt.Errorf("mixed: %d values, %d group labels", len(values), len(groups))
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 1000
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-8
	}

	// Partition by group, preserving first-appearance order so the fit is
	// deterministic for a given row order.
	index := make(map[string]int)
	var grouped [][]float64
	for i, g := range groups {
		j, ok := index[g]
		if !ok {
			j = len(grouped)
			index[g] = j
			grouped = append(grouped, nil)
		}
		grouped[j] = append(grouped[j], values[i])
	}

	m := len(grouped)
	if m < 2 {
		return nil, fmt.Errorf("mixed: need at least 2 groups, got %d", m)
	}
	nTotal := len(values)
	if nTotal < m+1 {
		return nil, fmt.Errorf("mixed: %d observations cannot support %d groups", nTotal, m)
	}

	groupMeans := make([]float64, m)
	groupSizes := make([]float64, m)
	for i, obs := range grouped {
		groupMeans[i] = stat.Mean(obs, nil)
		groupSizes[i] = float64(len(obs))
	}

	// Starting values: grand mean, within-group variance, between-group
	// variance of the group means.
	mu := stat.Mean(values, nil)
	sigmaE2 := 0.0
	for i, obs := range grouped {
		for _, v := range obs {
			d := v - groupMeans[i]
			sigmaE2 += d * d
		}
	}
	sigmaE2 /= float64(nTotal)
	sigmaB2 := stat.PopVariance(groupMeans, nil)
	if sigmaE2 <= 0 {
		return nil, fmt.Errorf("mixed: zero residual variance (all values identical within groups)")
	}
	if sigmaB2 <= 0 {
		sigmaB2 = sigmaE2 / 10
	}

	var (
		converged bool
		iter      int
		weightSum float64
	)
	for iter = 1; iter <= opts.MaxIter; iter++ {
		// GLS update of mu under the current variance components.
		weightSum = 0
		muNew := 0.0
		for i := range grouped {
			w := groupSizes[i] / (sigmaE2 + groupSizes[i]*sigmaB2)
			weightSum += w
			muNew += w * groupMeans[i]
		}
		muNew /= weightSum

		// E-step: posterior mean and variance of each random intercept.
		// M-step: variance-component updates.
		sumB2 := 0.0
		sumResid := 0.0
		for i, obs := range grouped {
			ni := groupSizes[i]
			shrink := sigmaB2 * ni / (sigmaE2 + ni*sigmaB2)
			bi := shrink * (groupMeans[i] - muNew)
			vi := sigmaB2 * sigmaE2 / (sigmaE2 + ni*sigmaB2)

			sumB2 += bi*bi + vi
			for _, v := range obs {
				d := v - muNew - bi
				sumResid += d * d
			}
			sumResid += ni * vi
		}
		sigmaB2New := sumB2 / float64(m)
		sigmaE2New := sumResid / float64(nTotal)

		// Snap a collapsing group variance to the boundary; zero is a
		// fixed point of the update, so the fit then converges instead
		// of crawling toward it.
		if sigmaB2New < 1e-10*sigmaE2New {
			sigmaB2New = 0
		}
		if sigmaE2New <= 0 {
			return nil, fmt.Errorf("mixed: residual variance collapsed to zero during fit")
		}

		delta := math.Max(relChange(mu, muNew),
			math.Max(relChange(sigmaB2, sigmaB2New), relChange(sigmaE2, sigmaE2New)))
		mu, sigmaB2, sigmaE2 = muNew, sigmaB2New, sigmaE2New
		if delta < opts.Tol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("mixed: fit did not converge after %d iterations", opts.MaxIter)
	}

	// Recompute the GLS weight sum at the converged components; its inverse
	// is the variance of the intercept estimate.
	weightSum = 0
	for i := range grouped {
		weightSum += groupSizes[i] / (sigmaE2 + groupSizes[i]*sigmaB2)
	}
	se := math.Sqrt(1 / weightSum)

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.975)
	return &RandomInterceptResult{
		Intercept:  mu,
		StdErr:     se,
		CILower:    mu - z*se,
		CIUpper:    mu + z*se,
		GroupVar:   sigmaB2,
		ResidVar:   sigmaE2,
		Groups:     m,
		Obs:        nTotal,
		Iterations: iter,
	}, nil
}

// ConfInt returns the two-sided (1-alpha) normal-approximation confidence
// interval for the fixed-effect intercept.
func (r *RandomInterceptResult) ConfInt(alpha float64) ([2]float64, error) {
	if alpha <= 0 || alpha >= 1 {
		return [2]float64{}, fmt.Errorf("mixed: alpha %v outside (0, 1)", alpha)
	}
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - alpha/2)
	return [2]float64{r.Intercept - z*r.StdErr, r.Intercept + z*r.StdErr}, nil
}

func relChange(old, cur float64) float64 {
	return math.Abs(cur-old) / (1 + math.Abs(old))
}
