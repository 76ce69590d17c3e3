// Package neurostat provides statistical helper routines for analyzing
// neural time-series data (e.g. intracranial electrode recordings) against
// behavioral or categorical regressors.
//
// # Features
//
//   - Permutation-based significance testing for OLS regression coefficients
//   - Time-resolved regression repeated independently at each time sample,
//     optionally within a sliding smoothing window
//   - Mixed-effects (random-intercept) significance testing for
//     electrode-level measures nested within participants
//
// # Quick Start
//
// Score a regression against a permutation null:
//
//	f, _ := formula.Parse("y ~ 1 + rt + C(cond)")
//	results, _ := permtest.RegressionZScore(tbl, f, permtest.Options{Seed: 42})
//
// Run a time-resolved regression over a trials x time signal matrix:
//
//	res, _ := timereg.Run(signal, regressors, timereg.Options{
//		WinLen: 100, SlideLen: 25,
//		Standardize: true, Smooth: true,
//		SamplingRate: 500,
//	})
//
// # Packages
//
// The library is organized into the following packages:
//
//   - dataset: column-oriented observation tables and file loaders
//   - formula: model formula parsing and design-matrix construction
//   - regress: OLS and random-intercept fitting backends
//   - permtest: permutation significance testing
//   - timereg: time-resolved regression and sliding-window smoothing
package neurostat
