// Package dataset turns uploaded tabular files into a single in-memory table
// and renders query results back out as CSV.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// TableName is the fixed name uploaded data is registered under.
const TableName = "user_data"

const (
	FormatCSV     = "csv"
	FormatXLSX    = "xlsx"
	FormatParquet = "parquet"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoHeader          = errors.New("file has no header row")
)

type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeText    ColumnType = "TEXT"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table holds parsed rows. Cells are nil, int64, float64 or string.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Head returns at most n leading rows.
func (t Table) Head(n int) [][]any {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// FormatOf maps a file name to one of the supported upload formats.
func FormatOf(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(filename)), "."))
	switch ext {
	case FormatCSV, FormatXLSX, FormatParquet:
		return ext, nil
	default:
		return "", fmt.Errorf("%w: %q (expected .csv, .xlsx or .parquet)", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Parse reads an uploaded file, choosing the decoder from its extension.
func Parse(filename string, r io.Reader) (Table, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return Table{}, err
	}
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatXLSX:
		return ParseXLSX(r)
	default:
		return ParseParquet(r)
	}
}
