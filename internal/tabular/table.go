// Package tabular is the thin table layer under the loaders: raw CSV tables
// with whitespace-stripped headers, column lookup by name or by header
// substring, and the schema error type raised when a required column cannot
// be located.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is one loaded source table. Rows hold raw string cells; all typing
// and cleaning happens in the loaders.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// ReadCSV parses a CSV stream into a Table. Header whitespace is stripped
// on read so downstream lookups never see padded column names. Rows may be
// ragged; loaders treat short rows as having empty trailing cells.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("table %s: empty input", name)
	}
	if err != nil {
		return nil, fmt.Errorf("table %s: read headers: %w", name, err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table %s: read row %d: %w", name, len(rows)+2, err)
		}
		rows = append(rows, row)
	}

	return &Table{Name: name, Headers: headers, Rows: rows}, nil
}

// Column returns the index of the header matching name case-insensitively.
func (t *Table) Column(name string) (int, bool) {
	for i, h := range t.Headers {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return 0, false
}

// FindColumn returns the first header whose lowercased text contains any of
// the given substrings, skipping indexes in exclude. This is the contract
// for loosely-schemaed sources: the caller names a pattern, not a column.
func (t *Table) FindColumn(substrings []string, exclude ...int) (int, bool) {
	skip := make(map[int]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	for i, h := range t.Headers {
		if skip[i] {
			continue
		}
		lower := strings.ToLower(h)
		for _, sub := range substrings {
			if strings.Contains(lower, sub) {
				return i, true
			}
		}
	}
	return 0, false
}

// Cell returns the trimmed cell at (row, col), or "" when the row is too
// short.
func (t *Table) Cell(row, col int) string {
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// SchemaError reports that an expected column, or column-name pattern,
// could not be located in a source table. It is fatal to a refresh cycle:
// downstream joins cannot proceed without the column.
type SchemaError struct {
	Table   string
	Missing string // column name or pattern description
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s: no column matching %s", e.Table, e.Missing)
}
