// Package regress implements the regression backends behind the analysis
// utilities: an ordinary least-squares fitter and a random-intercept
// mixed-effects fitter for group-nested measures.
package regress

import "gonum.org/v1/gonum/mat"

// Fitter is the narrow solver capability consumed by resampling code. It
// returns only the fitted coefficient vector, so permutation sweeps can run
// against a stub backend in tests.
type Fitter interface {
	// Coefficients fits the model for response y and design matrix x and
	// returns one coefficient per design-matrix column.
	Coefficients(y []float64, x *mat.Dense) ([]float64, error)
}
