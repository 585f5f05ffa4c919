package query

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/autosql/autosql/internal/dataset"
)

// TypeMapper renders a dataset column type in the engine's SQL dialect.
type TypeMapper func(dataset.ColumnType) string

// DBEngine is an Engine over a single-connection in-memory database/sql
// handle. Loading replaces the table.
type DBEngine struct {
	name     string
	db       *sql.DB
	types    TypeMapper
	rowLimit int

	mu     sync.Mutex
	loaded bool
}

func NewDBEngine(name string, db *sql.DB, types TypeMapper, rowLimit int) *DBEngine {
	if types == nil {
		types = func(t dataset.ColumnType) string { return string(t) }
	}
	return &DBEngine{name: name, db: db, types: types, rowLimit: rowLimit}
}

func (e *DBEngine) Name() string { return e.name }

func (e *DBEngine) Load(ctx context.Context, table dataset.Table) error {
	if len(table.Columns) == 0 {
		return fmt.Errorf("table has no columns")
	}
	tableName := table.Name
	if tableName == "" {
		tableName = dataset.TableName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+QuoteIdent(tableName)); err != nil {
		return fmt.Errorf("drop table %q: %w", tableName, err)
	}

	definitions := make([]string, 0, len(table.Columns))
	placeholders := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		definitions = append(definitions, QuoteIdent(column.Name)+" "+e.types(column.Type))
		placeholders = append(placeholders, "?")
	}
	createSQL := fmt.Sprintf(`CREATE TABLE %s (%s)`, QuoteIdent(tableName), strings.Join(definitions, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", tableName, err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s VALUES (%s)`, QuoteIdent(tableName), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(table.Columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load: %w", err)
	}
	e.loaded = true
	return nil
}

// Execute runs sqlText as-is; engine errors are returned with their original
// message so callers can show them verbatim.
func (e *DBEngine) Execute(ctx context.Context, sqlText string) (Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return Result{}, ErrNoDataset
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	result := Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if e.rowLimit > 0 && len(result.Rows) >= e.rowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *DBEngine) Close() error {
	return e.db.Close()
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case float64:
			if math.IsNaN(typed) || math.IsInf(typed, 0) {
				normalized[i] = nil
			} else {
				normalized[i] = typed
			}
		case float32:
			if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
				normalized[i] = nil
			} else {
				normalized[i] = typed
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
