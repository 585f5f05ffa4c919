package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// missingTokens are the cells pandas' read_csv treats as NA by default.
var missingTokens = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

func isMissing(cell string) bool {
	_, ok := missingTokens[cell]
	return ok
}

// nonFinite reports NaN and infinity spellings that ParseFloat accepts. In a
// numeric column they load as NULL since JSON cannot carry them.
func nonFinite(cell string) bool {
	value, err := strconv.ParseFloat(cell, 64)
	return err == nil && (math.IsNaN(value) || math.IsInf(value, 0))
}

// fromRecords builds a typed table from a header and string cells. Column
// types are inferred from the present cells; blank and NA cells become NULL.
func fromRecords(header []string, records [][]string) (Table, error) {
	if len(header) == 0 {
		return Table{}, ErrNoHeader
	}
	names := normalizeHeader(header)

	for i, record := range records {
		if len(record) > len(names) {
			if !allBlank(record[len(names):]) {
				return Table{}, fmt.Errorf("row %d has %d fields, header has %d", i+2, len(record), len(names))
			}
		}
	}

	columns := make([]Column, len(names))
	for col, name := range names {
		columns[col] = Column{Name: name, Type: inferColumnType(records, col)}
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		if allBlank(record) {
			continue
		}
		row := make([]any, len(columns))
		for col, column := range columns {
			row[col] = convertCell(cellAt(record, col), column.Type)
		}
		rows = append(rows, row)
	}

	return Table{Name: TableName, Columns: columns, Rows: rows}, nil
}

func normalizeHeader(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = "unnamed_" + strconv.Itoa(i)
		}
		key := strings.ToLower(name)
		if count, ok := seen[key]; ok {
			for {
				count++
				candidate := name + "_" + strconv.Itoa(count)
				if _, taken := seen[strings.ToLower(candidate)]; !taken {
					seen[key] = count
					name = candidate
					key = strings.ToLower(candidate)
					break
				}
			}
		}
		seen[key] = 0
		names[i] = name
	}
	return names
}

func inferColumnType(records [][]string, col int) ColumnType {
	inferred := TypeInteger
	sawValue := false
	for _, record := range records {
		cell := strings.TrimSpace(cellAt(record, col))
		if isMissing(cell) || nonFinite(cell) {
			continue
		}
		sawValue = true
		if inferred == TypeInteger {
			if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
				continue
			}
			inferred = TypeReal
		}
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			continue
		}
		return TypeText
	}
	if !sawValue {
		return TypeText
	}
	return inferred
}

func convertCell(cell string, columnType ColumnType) any {
	trimmed := strings.TrimSpace(cell)
	if isMissing(trimmed) {
		return nil
	}
	if columnType != TypeText && nonFinite(trimmed) {
		return nil
	}
	switch columnType {
	case TypeInteger:
		if value, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return value
		}
	case TypeReal:
		if value, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return value
		}
	}
	return cell
}

func cellAt(record []string, col int) string {
	if col < len(record) {
		return record[col]
	}
	return ""
}

func allBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
