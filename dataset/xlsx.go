package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads one sheet of an Excel workbook into a Table. The first row
// is the header; column typing follows the same numeric/label detection as
// LoadCSV. An empty sheet name selects the workbook's first sheet.
func LoadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := rows[0]
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header in sheet %q", sheet)
	}

	// excelize trims trailing empty cells per row; pad during detection.
	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if allEmpty(row) {
			continue
		}
		body = append(body, row)
	}

	return tableFromCells(header, body)
}

func allEmpty(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
