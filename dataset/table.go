// Package dataset provides the column-oriented observation table shared by
// the regression utilities. Rows are trials (or electrodes), columns are
// named regressors, grouping labels, or responses. NaN marks a missing
// numeric value; the empty string marks a missing label.
package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Table is a fixed-row-count table of named columns. Column order is
// insertion order. Numeric and label columns share one namespace.
type Table struct {
	nRows  int
	names  []string
	nums   map[string][]float64
	labels map[string][]string
}

// New creates an empty table with a fixed number of rows.
func New(nRows int) *Table {
	return &Table{
		nRows:  nRows,
		nums:   make(map[string][]float64),
		labels: make(map[string][]string),
	}
}

// NumRows returns the row count shared by every column.
func (t *Table) NumRows() int { return t.nRows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.names) }

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// HasColumn reports whether a column of either kind exists.
func (t *Table) HasColumn(name string) bool {
	_, num := t.nums[name]
	_, lab := t.labels[name]
	return num || lab
}

// IsNumeric reports whether name is a numeric column.
func (t *Table) IsNumeric(name string) bool {
	_, ok := t.nums[name]
	return ok
}

// IsLabel reports whether name is a label (categorical) column.
func (t *Table) IsLabel(name string) bool {
	_, ok := t.labels[name]
	return ok
}

// AddNumeric appends a numeric column. The column name must be unused and
// values must match the table's row count.
func (t *Table) AddNumeric(name string, values []float64) error {
	if t.HasColumn(name) {
		return fmt.Errorf("dataset: duplicate column %q", name)
	}
	if len(values) != t.nRows {
		return fmt.Errorf("dataset: column %q has %d values, table has %d rows", name, len(values), t.nRows)
	}
	col := make([]float64, len(values))
	copy(col, values)
	t.names = append(t.names, name)
	t.nums[name] = col
	return nil
}

// AddLabels appends a label column.
func (t *Table) AddLabels(name string, values []string) error {
	if t.HasColumn(name) {
		return fmt.Errorf("dataset: duplicate column %q", name)
	}
	if len(values) != t.nRows {
		return fmt.Errorf("dataset: column %q has %d values, table has %d rows", name, len(values), t.nRows)
	}
	col := make([]string, len(values))
	copy(col, values)
	t.names = append(t.names, name)
	t.labels[name] = col
	return nil
}

// Numeric returns a copy of a numeric column.
func (t *Table) Numeric(name string) ([]float64, error) {
	col, ok := t.nums[name]
	if !ok {
		if t.IsLabel(name) {
			return nil, fmt.Errorf("dataset: column %q is not numeric", name)
		}
		return nil, fmt.Errorf("dataset: no column %q", name)
	}
	out := make([]float64, len(col))
	copy(out, col)
	return out, nil
}

// Labels returns a copy of a label column.
func (t *Table) Labels(name string) ([]string, error) {
	col, ok := t.labels[name]
	if !ok {
		if t.IsNumeric(name) {
			return nil, fmt.Errorf("dataset: column %q is not a label column", name)
		}
		return nil, fmt.Errorf("dataset: no column %q", name)
	}
	out := make([]string, len(col))
	copy(out, col)
	return out, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.nRows)
	out.names = make([]string, len(t.names))
	copy(out.names, t.names)
	for name, col := range t.nums {
		c := make([]float64, len(col))
		copy(c, col)
		out.nums[name] = c
	}
	for name, col := range t.labels {
		c := make([]string, len(col))
		copy(c, col)
		out.labels[name] = c
	}
	return out
}

// WithNumeric returns a copy of the table with the named numeric column
// replaced, or appended if it does not exist. The receiver is unchanged,
// so callers can safely reuse one base table across concurrent fits.
func (t *Table) WithNumeric(name string, values []float64) (*Table, error) {
	if len(values) != t.nRows {
		return nil, fmt.Errorf("dataset: column %q has %d values, table has %d rows", name, len(values), t.nRows)
	}
	if t.IsLabel(name) {
		return nil, fmt.Errorf("dataset: column %q is a label column", name)
	}
	out := t.Clone()
	col := make([]float64, len(values))
	copy(col, values)
	if !out.IsNumeric(name) {
		out.names = append(out.names, name)
	}
	out.nums[name] = col
	return out, nil
}

// Standardized returns a copy of the table with every numeric column
// rescaled to (x - mean(x)) / (2 * std(x)), ignoring missing values in the
// mean/std computation. The half-standard-deviation scaling puts continuous
// and binary predictors on comparable footing (Gelman's convention). Label
// columns are left untouched.
func (t *Table) Standardized() (*Table, error) {
	out := t.Clone()
	for _, name := range t.names {
		col, ok := out.nums[name]
		if !ok {
			continue
		}
		m := NaNMean(col)
		s := NaNStd(col)
		if math.IsNaN(m) {
			return nil, fmt.Errorf("dataset: column %q has no observed values", name)
		}
		if s == 0 {
			return nil, fmt.Errorf("dataset: cannot standardize zero-variance column %q", name)
		}
		for i, v := range col {
			col[i] = (v - m) / (2 * s)
		}
	}
	return out, nil
}

// NaNMean returns the mean of the non-NaN values, or NaN if there are none.
func NaNMean(values []float64) float64 {
	obs := observed(values)
	if len(obs) == 0 {
		return math.NaN()
	}
	return stat.Mean(obs, nil)
}

// NaNStd returns the population standard deviation of the non-NaN values,
// or NaN if there are none.
func NaNStd(values []float64) float64 {
	obs := observed(values)
	if len(obs) == 0 {
		return math.NaN()
	}
	return math.Sqrt(stat.PopVariance(obs, nil))
}

func observed(values []float64) []float64 {
	obs := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	return obs
}
