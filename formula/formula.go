// Package formula parses model formulas of the form "response ~ terms" and
// expands them against a dataset.Table into a numeric response vector and a
// design matrix.
//
// The grammar is deliberately small: terms are separated by "+", "1" names
// the intercept (present by default), "0" or "-1" removes it, and "C(col)"
// forces categorical (treatment-coded) expansion of a column. Label columns
// are expanded categorically even without C().
package formula

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/lfplab/neurostat/dataset"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Term is one right-hand-side entry of a formula.
type Term struct {
	Name string
	// Categorical forces treatment-coded expansion even for numeric
	// columns (the C(...) syntax). Label columns always expand.
	Categorical bool
}

// Formula is a parsed "response ~ terms" specification.
type Formula struct {
	Response  string
	Intercept bool
	Terms     []Term
}

// Design holds the expanded response vector and design matrix for one
// formula applied to one table. Rows with missing values in the response
// or any term are dropped before expansion; Dropped counts them.
type Design struct {
	Response []float64
	X        *mat.Dense
	// Names holds one entry per design-matrix column, "Intercept" first
	// when the formula keeps the intercept.
	Names   []string
	Dropped int
}

// Parse parses a formula string such as "sig ~ 1 + rt + C(cond)".
func Parse(s string) (*Formula, error) {
	parts := strings.Split(s, "~")
	if len(parts) != 2 {
		return nil, fmt.Errorf("formula: %q must contain exactly one ~", s)
	}

	resp := strings.TrimSpace(parts[0])
	if !identRe.MatchString(resp) {
		return nil, fmt.Errorf("formula: invalid response name %q", resp)
	}

	f := &Formula{Response: resp, Intercept: true}
	seen := make(map[string]bool)
	sawIntercept := false

	for _, raw := range strings.Split(parts[1], "+") {
		tok := strings.TrimSpace(raw)
		switch tok {
		case "":
			return nil, fmt.Errorf("formula: empty term in %q", s)
		case "1":
			f.Intercept = true
			sawIntercept = true
			continue
		case "0", "-1":
			f.Intercept = false
			sawIntercept = true
			continue
		}

		term := Term{Name: tok}
		if strings.HasPrefix(tok, "C(") && strings.HasSuffix(tok, ")") {
			term.Name = strings.TrimSpace(tok[2 : len(tok)-1])
			term.Categorical = true
		}
		if !identRe.MatchString(term.Name) {
			return nil, fmt.Errorf("formula: invalid term %q", tok)
		}
		if term.Name == resp {
			return nil, fmt.Errorf("formula: response %q cannot appear as a term", resp)
		}
		if seen[term.Name] {
			return nil, fmt.Errorf("formula: duplicate term %q", term.Name)
		}
		seen[term.Name] = true
		f.Terms = append(f.Terms, term)
	}

	if len(f.Terms) == 0 && !sawIntercept {
		return nil, fmt.Errorf("formula: no terms on right-hand side of %q", s)
	}
	return f, nil
}

// ForRegressors builds the formula "response ~ 1 + <every table column>",
// marking label columns categorical. This is the formula the time-resolved
// driver constructs once and reuses at every time index.
func ForRegressors(response string, regressors *dataset.Table) *Formula {
	f := &Formula{Response: response, Intercept: true}
	for _, name := range regressors.Names() {
		if name == response {
			continue
		}
		f.Terms = append(f.Terms, Term{Name: name, Categorical: regressors.IsLabel(name)})
	}
	return f
}

// String renders the formula back into its textual form.
func (f *Formula) String() string {
	var b strings.Builder
	b.WriteString(f.Response)
	b.WriteString(" ~ ")
	if f.Intercept {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	for _, term := range f.Terms {
		b.WriteString(" + ")
		if term.Categorical {
			b.WriteString("C(" + term.Name + ")")
		} else {
			b.WriteString(term.Name)
		}
	}
	return b.String()
}

// Build expands the formula against a table into a response vector and
// design matrix. Column order is fixed: intercept first, then terms in
// formula order, with categorical terms expanding into one indicator per
// non-reference level (levels sorted, first level is the reference).
func (f *Formula) Build(tbl *dataset.Table) (*Design, error) {
	n := tbl.NumRows()

	resp, err := tbl.Numeric(f.Response)
	if err != nil {
		return nil, fmt.Errorf("formula: response: %w", err)
	}

	// Gather term columns up front so unknown columns fail before any
	// row filtering.
	numCols := make(map[string][]float64)
	labCols := make(map[string][]string)
	for _, term := range f.Terms {
		switch {
		case tbl.IsNumeric(term.Name):
			col, _ := tbl.Numeric(term.Name)
			if term.Categorical {
				labCols[term.Name] = stringifyNumeric(col)
			} else {
				numCols[term.Name] = col
			}
		case tbl.IsLabel(term.Name):
			col, _ := tbl.Labels(term.Name)
			labCols[term.Name] = col
		default:
			return nil, fmt.Errorf("formula: no column %q in table", term.Name)
		}
	}

	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(resp[i]) {
			continue
		}
		complete := true
		for _, col := range numCols {
			if math.IsNaN(col[i]) {
				complete = false
				break
			}
		}
		if complete {
			for _, col := range labCols {
				if col[i] == "" {
					complete = false
					break
				}
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("formula: no complete observations for %q", f.String())
	}

	// Expand categorical terms: sorted levels, first level as reference.
	type column struct {
		name   string
		values []float64
	}
	var cols []column
	if f.Intercept {
		ones := make([]float64, len(keep))
		for i := range ones {
			ones[i] = 1
		}
		cols = append(cols, column{name: "Intercept", values: ones})
	}
	for _, term := range f.Terms {
		if col, ok := numCols[term.Name]; ok {
			vals := make([]float64, len(keep))
			for i, row := range keep {
				vals[i] = col[row]
			}
			cols = append(cols, column{name: term.Name, values: vals})
			continue
		}

		col := labCols[term.Name]
		levels := sortedLevels(col, keep)
		if len(levels) < 2 {
			return nil, fmt.Errorf("formula: categorical term %q has fewer than two levels", term.Name)
		}
		for _, level := range levels[1:] {
			vals := make([]float64, len(keep))
			for i, row := range keep {
				if col[row] == level {
					vals[i] = 1
				}
			}
			cols = append(cols, column{
				name:   fmt.Sprintf("%s[T.%s]", term.Name, level),
				values: vals,
			})
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("formula: %q produces an empty design matrix", f.String())
	}

	y := make([]float64, len(keep))
	for i, row := range keep {
		y[i] = resp[row]
	}

	x := mat.NewDense(len(keep), len(cols), nil)
	names := make([]string, len(cols))
	for j, c := range cols {
		names[j] = c.name
		for i, v := range c.values {
			x.Set(i, j, v)
		}
	}

	return &Design{
		Response: y,
		X:        x,
		Names:    names,
		Dropped:  n - len(keep),
	}, nil
}

func stringifyNumeric(col []float64) []string {
	out := make([]string, len(col))
	for i, v := range col {
		if math.IsNaN(v) {
			continue // stays "", i.e. missing
		}
		out[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out
}

func sortedLevels(col []string, keep []int) []string {
	seen := make(map[string]bool)
	var levels []string
	for _, row := range keep {
		if v := col[row]; !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)
	return levels
}
