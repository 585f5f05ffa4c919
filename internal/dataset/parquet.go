package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/parquet-go/parquet-go"
)

// ParseParquet reads a Parquet file with a flat schema. Column types come from
// the physical type of each leaf.
func ParseParquet(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("read parquet upload: %w", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Table{}, fmt.Errorf("open parquet file: %w", err)
	}

	fields := file.Schema().Fields()
	if len(fields) == 0 {
		return Table{}, ErrNoHeader
	}
	header := make([]string, len(fields))
	columns := make([]Column, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return Table{}, fmt.Errorf("parquet column %q is nested; only flat schemas are supported", field.Name())
		}
		header[i] = field.Name()
		columns[i] = Column{Type: parquetColumnType(field.Type().Kind())}
	}
	for i, name := range normalizeHeader(header) {
		columns[i].Name = name
	}

	rows := make([][]any, 0, file.NumRows())
	buf := make([]parquet.Row, 256)
	for _, rowGroup := range file.RowGroups() {
		groupRows := rowGroup.Rows()
		for {
			n, err := groupRows.ReadRows(buf)
			for _, parquetRow := range buf[:n] {
				row := make([]any, len(columns))
				for _, value := range parquetRow {
					col := value.Column()
					if col < 0 || col >= len(row) {
						continue
					}
					row[col] = parquetValue(value)
				}
				rows = append(rows, row)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = groupRows.Close()
				return Table{}, fmt.Errorf("read parquet rows: %w", err)
			}
		}
		if err := groupRows.Close(); err != nil {
			return Table{}, fmt.Errorf("close parquet rows: %w", err)
		}
	}

	return Table{Name: TableName, Columns: columns, Rows: rows}, nil
}

func parquetColumnType(kind parquet.Kind) ColumnType {
	switch kind {
	case parquet.Boolean, parquet.Int32, parquet.Int64:
		return TypeInteger
	case parquet.Float, parquet.Double:
		return TypeReal
	default:
		return TypeText
	}
}

func parquetValue(value parquet.Value) any {
	if value.IsNull() {
		return nil
	}
	switch value.Kind() {
	case parquet.Boolean:
		if value.Boolean() {
			return int64(1)
		}
		return int64(0)
	case parquet.Int32:
		return int64(value.Int32())
	case parquet.Int64:
		return value.Int64()
	case parquet.Float:
		return finiteOrNil(float64(value.Float()))
	case parquet.Double:
		return finiteOrNil(value.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(value.ByteArray())
	default:
		return value.String()
	}
}

func finiteOrNil(value float64) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return value
}
