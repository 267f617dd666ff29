package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Table is an ordered grid of string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// WriteCSV renders t as RFC 4180 CSV. Short rows are padded, long rows rejected.
func WriteCSV(w io.Writer, t Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("csv requires at least one column")
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		if len(row) > len(t.Columns) {
			return fmt.Errorf("csv row %d has %d cells, want at most %d", i, len(row), len(t.Columns))
		}
		for j := range record {
			record[j] = ""
			if j < len(row) {
				record[j] = neutralize(row[j])
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// neutralize prefixes cells spreadsheets would evaluate as formulas.
func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@':
		return "'" + cell
	}
	return cell
}
