package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LoadCSV reads a CSV file with a header row into a Table. A column whose
// every non-empty cell parses as a float becomes numeric (empty, "nan" and
// "NA" cells become NaN); any other column becomes a label column (empty
// cells stay empty, meaning missing).
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header in %s", path)
	}

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", len(rows)+2, len(record), len(header))
		}
		rows = append(rows, record)
	}

	return tableFromCells(header, rows)
}

// tableFromCells builds a Table from a header and string cells, detecting
// numeric columns. Shared by the CSV and XLSX loaders.
func tableFromCells(header []string, rows [][]string) (*Table, error) {
	tbl := New(len(rows))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", j+1)
		}

		numeric := true
		vals := make([]float64, len(rows))
		for i, row := range rows {
			cell := ""
			if j < len(row) {
				cell = strings.TrimSpace(row[j])
			}
			if isMissingCell(cell) {
				vals[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				numeric = false
				break
			}
			vals[i] = v
		}

		if numeric {
			if err := tbl.AddNumeric(name, vals); err != nil {
				return nil, err
			}
			continue
		}

		labs := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				labs[i] = strings.TrimSpace(row[j])
			}
		}
		if err := tbl.AddLabels(name, labs); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func isMissingCell(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "nan", "na":
		return true
	}
	return false
}

// LoadMatrixCSV reads a numeric trials x time matrix from a CSV file. If
// the first row does not parse as numbers it is treated as a header and
// skipped. Empty or "nan" cells become NaN.
func LoadMatrixCSV(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	var (
		data []float64
		cols int
		rows int
	)
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", rows+1, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}

		vals, perr := parseFloatRow(record)
		if perr != nil {
			if first {
				// Header row.
				first = false
				continue
			}
			return nil, fmt.Errorf("row %d: %v", rows+1, perr)
		}
		first = false

		if cols == 0 {
			cols = len(vals)
		} else if len(vals) != cols {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", rows+1, len(vals), cols)
		}
		data = append(data, vals...)
		rows++
	}

	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return mat.NewDense(rows, cols, data), nil
}

func parseFloatRow(record []string) ([]float64, error) {
	vals := make([]float64, len(record))
	for j, cell := range record {
		cell = strings.TrimSpace(cell)
		if isMissingCell(cell) {
			vals[j] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %v", j+1, err)
		}
		vals[j] = v
	}
	return vals, nil
}
