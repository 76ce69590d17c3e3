package timereg

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// WriteCSV writes the result table to a CSV file with one row per
// (coefficient, time index) pair. Fields a fit mode does not populate are
// written as "NaN".
func (r *Result) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"term", "ts_ms", "estimate", "std_err", "null_mean", "null_std", "z_score", "p_value"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range r.Rows {
		record := []string{
			row.Term,
			formatFloat(row.TimeMS),
			formatFloat(row.Estimate),
			formatFloat(row.StdErr),
			formatFloat(row.NullMean),
			formatFloat(row.NullStd),
			formatFloat(row.ZScore),
			formatFloat(row.PValue),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
