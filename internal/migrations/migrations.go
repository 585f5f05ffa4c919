package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "autosql_schema_migrations"

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

// Runner applies the embedded credential-store schema to Postgres. Applied
// versions are tracked in autosql_schema_migrations.
type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

func newRunnerWithFS(fsys fs.FS) *Runner {
	return &Runner{fsys: fsys}
}

type Status struct {
	Applied []int64
	Pending []int64
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// state is the source migrations joined with what the database reports.
type state struct {
	source  []migration
	applied []int64
}

func (s state) isApplied(version int64) bool {
	i := sort.Search(len(s.applied), func(i int) bool { return s.applied[i] >= version })
	return i < len(s.applied) && s.applied[i] == version
}

func (s state) lookup(version int64) (migration, bool) {
	for _, item := range s.source {
		if item.Version == version {
			return item, true
		}
	}
	return migration{}, false
}

func (r *Runner) load(ctx context.Context, db *sql.DB) (state, error) {
	source, err := loadMigrations(r.fsys)
	if err != nil {
		return state{}, err
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return state{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return state{}, err
	}
	return state{source: source, applied: applied}, nil
}

// Up applies pending migrations oldest first. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	st, err := r.load(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, item := range st.source {
		if st.isApplied(item.Version) {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, item.UpSQL); err != nil {
				return fmt.Errorf("apply migration %d_%s: %w", item.Version, item.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (version, name) VALUES ($1, $2)`, item.Version, item.Name); err != nil {
				return fmt.Errorf("record migration %d: %w", item.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Down rolls back applied migrations newest first. steps <= 0 means one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	st, err := r.load(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := len(st.applied) - 1; i >= 0 && count < steps; i-- {
		version := st.applied[i]
		item, ok := st.lookup(version)
		if !ok {
			return count, fmt.Errorf("applied migration %d is missing from source", version)
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, item.DownSQL); err != nil {
				return fmt.Errorf("roll back migration %d_%s: %w", item.Version, item.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+migrationTable+` WHERE version = $1`, item.Version); err != nil {
				return fmt.Errorf("unrecord migration %d: %w", item.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) (Status, error) {
	st, err := r.load(ctx, db)
	if err != nil {
		return Status{}, err
	}
	status := Status{Applied: st.applied}
	for _, item := range st.source {
		if !st.isApplied(item.Version) {
			status.Pending = append(status.Pending, item.Version)
		}
	}
	return status, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return versions, nil
}

// loadMigrations pairs NNNNNN_name.up.sql with NNNNNN_name.down.sql and
// returns them ordered by version. Both halves must be present and non-empty.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, file := range files {
		base := path.Base(file)
		matches := migrationNamePattern.FindStringSubmatch(base)
		if matches == nil {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}
		name, direction := matches[2], matches[3]

		script, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", base, err)
		}

		item, ok := byVersion[version]
		if !ok {
			item = &migration{Version: version, Name: name}
			byVersion[version] = item
		} else if item.Name != name {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, item.Name, name)
		}

		target := &item.UpSQL
		if direction == "down" {
			target = &item.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("migration %d has duplicate %s SQL", version, direction)
		}
		*target = string(script)
	}

	out := make([]migration, 0, len(byVersion))
	for _, item := range byVersion {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
