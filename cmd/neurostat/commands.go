package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lfplab/neurostat/dataset"
	"github.com/lfplab/neurostat/formula"
	"github.com/lfplab/neurostat/permtest"
	"github.com/lfplab/neurostat/regress"
	"github.com/lfplab/neurostat/timereg"
)

func newTimeregCommand() *cobra.Command {
	var (
		signalPath    string
		regressorPath string
		sheet         string
		outPath       string
		winLen        int
		slideLen      int
		standardize   bool
		smooth        bool
		permute       bool
		nPermutations int
		samplingRate  float64
		seed          int64
	)

	cmd := &cobra.Command{
		Use:   "timereg",
		Short: "Time-resolved regression over a trials x time signal matrix",
		RunE: func(_ *cobra.Command, _ []string) error {
			signal, err := dataset.LoadMatrixCSV(signalPath)
			if err != nil {
				return err
			}
			regressors, err := loadTable(regressorPath, sheet)
			if err != nil {
				return err
			}

			res, err := timereg.Run(signal, regressors, timereg.Options{
				WinLen:        winLen,
				SlideLen:      slideLen,
				Standardize:   standardize,
				Smooth:        smooth,
				Permute:       permute,
				NPermutations: nPermutations,
				SamplingRate:  samplingRate,
				Seed:          seed,
			})
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := res.WriteCSV(outPath); err != nil {
					return err
				}
				fmt.Printf("Wrote %d rows (%d coefficients x %d time indices) to %s\n",
					len(res.Rows), len(res.Terms), len(res.Times), outPath)
				return nil
			}
			renderTimeregTable(res, permute)
			return nil
		},
	}

	cmd.Flags().StringVar(&signalPath, "signal", "", "trials x time signal matrix CSV (required)")
	cmd.Flags().StringVar(&regressorPath, "regressors", "", "regressor table, one row per trial, .csv or .xlsx (required)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "xlsx sheet name (default: first sheet)")
	cmd.Flags().StringVar(&outPath, "out", "", "write results to this CSV instead of stdout")
	cmd.Flags().IntVar(&winLen, "win", 0, "smoothing window length in samples (default 100)")
	cmd.Flags().IntVar(&slideLen, "slide", 0, "smoothing stride in samples (default 25)")
	cmd.Flags().BoolVar(&standardize, "standardize", false, "half-sd standardize the regressors")
	cmd.Flags().BoolVar(&smooth, "smooth", false, "smooth the signal over sliding windows")
	cmd.Flags().BoolVar(&permute, "permute", false, "score coefficients against a permutation null")
	cmd.Flags().IntVar(&nPermutations, "permutations", 0, "permutations per timepoint (default 500)")
	cmd.Flags().Float64Var(&samplingRate, "sr", 500, "sampling rate in samples per second")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed; 0 = time-based")
	_ = cmd.MarkFlagRequired("signal")
	_ = cmd.MarkFlagRequired("regressors")

	return cmd
}

func newPermtestCommand() *cobra.Command {
	var (
		dataPath      string
		sheet         string
		formulaStr    string
		nPermutations int
		seed          int64
	)

	cmd := &cobra.Command{
		Use:   "permtest",
		Short: "Permutation significance test for regression coefficients",
		RunE: func(_ *cobra.Command, _ []string) error {
			tbl, err := loadTable(dataPath, sheet)
			if err != nil {
				return err
			}
			f, err := formula.Parse(formulaStr)
			if err != nil {
				return err
			}

			results, err := permtest.RegressionZScore(tbl, f, permtest.Options{
				NPermutations: nPermutations,
				Seed:          seed,
			})
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Coefficient", "Estimate", "Null Mean", "Null Std", "Z", "P"})
			for _, r := range results {
				t.AppendRow(table.Row{r.Name, ff(r.Estimate), ff(r.NullMean), ff(r.NullStd), ff(r.ZScore), ff(r.PValue)})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "observation table, .csv or .xlsx (required)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "xlsx sheet name (default: first sheet)")
	cmd.Flags().StringVar(&formulaStr, "formula", "", `model formula, e.g. "y ~ 1 + rt + C(cond)" (required)`)
	cmd.Flags().IntVar(&nPermutations, "permutations", 0, "permutation count (default 1000)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed; 0 = time-based")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("formula")

	return cmd
}

func newMixedCommand() *cobra.Command {
	var (
		dataPath  string
		sheet     string
		predictor string
		group     string
	)

	cmd := &cobra.Command{
		Use:   "mixed",
		Short: "Random-intercept test of a group-nested measure's grand mean",
		RunE: func(_ *cobra.Command, _ []string) error {
			tbl, err := loadTable(dataPath, sheet)
			if err != nil {
				return err
			}

			res, err := regress.FitRandomIntercept(tbl, predictor, group, regress.RandomInterceptOptions{})
			if err != nil {
				return err
			}

			fmt.Printf("Random-intercept fit: %d observations in %d groups (%d EM iterations)\n",
				res.Obs, res.Groups, res.Iterations)
			fmt.Printf("  Intercept: %s  (SE %s)\n", ff(res.Intercept), ff(res.StdErr))
			fmt.Printf("  95%% CI:    [%s, %s]\n", ff(res.CILower), ff(res.CIUpper))
			fmt.Printf("  Group var: %s  Residual var: %s\n", ff(res.GroupVar), ff(res.ResidVar))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "observation table, .csv or .xlsx (required)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "xlsx sheet name (default: first sheet)")
	cmd.Flags().StringVar(&predictor, "predictor", "", "numeric measure column (required)")
	cmd.Flags().StringVar(&group, "group", "participant", "grouping (random effect) column")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("predictor")

	return cmd
}

func renderTimeregTable(res *timereg.Result, permuted bool) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if permuted {
		t.AppendHeader(table.Row{"Term", "ts (ms)", "Estimate", "Null Mean", "Null Std", "Z", "P"})
		for _, r := range res.Rows {
			t.AppendRow(table.Row{r.Term, ff(r.TimeMS), ff(r.Estimate), ff(r.NullMean), ff(r.NullStd), ff(r.ZScore), ff(r.PValue)})
		}
	} else {
		t.AppendHeader(table.Row{"Term", "ts (ms)", "Estimate", "Std Err", "P"})
		for _, r := range res.Rows {
			t.AppendRow(table.Row{r.Term, ff(r.TimeMS), ff(r.Estimate), ff(r.StdErr), ff(r.PValue)})
		}
	}
	t.Render()
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
