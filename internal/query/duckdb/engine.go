package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/autosql/autosql/internal/dataset"
	"github.com/autosql/autosql/internal/query"
)

const Name = "duckdb"

// Open creates an empty in-memory DuckDB database.
func Open(ctx context.Context, rowLimit int) (*query.DBEngine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return query.NewDBEngine(Name, db, columnType, rowLimit), nil
}

func Factory(rowLimit int) query.Factory {
	return func(ctx context.Context) (query.Engine, error) {
		return Open(ctx, rowLimit)
	}
}

// DuckDB's INTEGER is 32-bit, so integers widen to BIGINT.
func columnType(t dataset.ColumnType) string {
	switch t {
	case dataset.TypeInteger:
		return "BIGINT"
	case dataset.TypeReal:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}
