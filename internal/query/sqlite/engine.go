package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/autosql/autosql/internal/query"
)

const Name = "sqlite"

// Open creates an empty in-memory SQLite database. The pool is pinned to a
// single connection because every :memory: connection is its own database.
func Open(ctx context.Context, rowLimit int) (*query.DBEngine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return query.NewDBEngine(Name, db, nil, rowLimit), nil
}

func Factory(rowLimit int) query.Factory {
	return func(ctx context.Context) (query.Engine, error) {
		return Open(ctx, rowLimit)
	}
}
