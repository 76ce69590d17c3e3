// Command neurostat runs the library's analyses over CSV/XLSX files: a
// time-resolved regression of a trials x time signal matrix, a standalone
// permutation regression, and a mixed-effects group-significance test.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lfplab/neurostat/dataset"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "neurostat",
		Short: "Statistical helpers for neural time-series regression",
		Long: `Neurostat analyzes neural time-series data against behavioral or
categorical regressors.

Commands:
  timereg   Time-resolved regression over a trials x time signal matrix
  permtest  Permutation significance test for regression coefficients
  mixed     Random-intercept test of a group-nested measure's grand mean`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newTimeregCommand())
	rootCmd.AddCommand(newPermtestCommand())
	rootCmd.AddCommand(newMixedCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadTable reads an observation table from a .csv or .xlsx file.
func loadTable(path, sheet string) (*dataset.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return dataset.LoadXLSX(path, sheet)
	case ".csv":
		return dataset.LoadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported table format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}
