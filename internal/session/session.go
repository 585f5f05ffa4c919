// Package session tracks logged-in users. Each session owns its own
// in-memory query engine, the metadata of the dataset loaded into it and the
// most recent query result.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autosql/autosql/internal/dataset"
	"github.com/autosql/autosql/internal/query"
)

type DatasetInfo struct {
	Filename string           `json:"filename"`
	Format   string           `json:"format"`
	Columns  []dataset.Column `json:"columns"`
	RowCount int              `json:"row_count"`
	Preview  [][]any          `json:"preview"`
	LoadedAt time.Time        `json:"loaded_at"`
}

type LastResult struct {
	SQL    string
	Result query.Result
}

type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time

	factory query.Factory

	lastSeen atomic.Int64

	mu      sync.Mutex
	engine  query.Engine
	dataset *DatasetInfo
	last    *LastResult
}

// LoadDataset opens the session engine on first use and replaces the table
// with the given one. The previous result is discarded.
func (s *Session) LoadDataset(ctx context.Context, table dataset.Table, info DatasetInfo) (query.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		engine, err := s.factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("open engine: %w", err)
		}
		s.engine = engine
	}
	if err := s.engine.Load(ctx, table); err != nil {
		return nil, err
	}

	s.dataset = &info
	s.last = nil
	return s.engine, nil
}

func (s *Session) Dataset() (DatasetInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return DatasetInfo{}, false
	}
	return *s.dataset, true
}

// ColumnNames returns the loaded column names, or nil without a dataset.
func (s *Session) ColumnNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return nil
	}
	names := make([]string, 0, len(s.dataset.Columns))
	for _, column := range s.dataset.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Execute runs sqlText on the session engine and remembers a successful
// result for export.
func (s *Session) Execute(ctx context.Context, sqlText string) (query.Result, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil || s.dataset == nil {
		return query.Result{}, "", query.ErrNoDataset
	}
	result, err := s.engine.Execute(ctx, sqlText)
	if err != nil {
		return query.Result{}, s.engineName(), err
	}
	s.last = &LastResult{SQL: sqlText, Result: result}
	return result, s.engineName(), nil
}

func (s *Session) LastResult() (LastResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return LastResult{}, false
	}
	return *s.last, true
}

func (s *Session) engineName() string {
	if s.engine == nil {
		return ""
	}
	return s.engine.Name()
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	s.dataset = nil
	s.last = nil
	return err
}
