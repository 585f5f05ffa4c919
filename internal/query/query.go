package query

import (
	"context"
	"errors"
	"time"

	"github.com/autosql/autosql/internal/dataset"
)

var ErrNoDataset = errors.New("no dataset loaded")

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// Engine holds one uploaded table and runs statements against it.
type Engine interface {
	Name() string
	Load(ctx context.Context, table dataset.Table) error
	Execute(ctx context.Context, sqlText string) (Result, error)
	Close() error
}

// Factory opens a fresh, empty engine for a session.
type Factory func(ctx context.Context) (Engine, error)
