//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/autosql/autosql/internal/auth"
	authpostgres "github.com/autosql/autosql/internal/auth/postgres"
)

func TestCredentialSchemaRoundTrip(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("AUTOSQL_TEST_CREDENTIALS_DSN"))
	if dsn == "" {
		t.Skip("AUTOSQL_TEST_CREDENTIALS_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := openIsolatedSchema(ctx, t, dsn)
	runner := NewRunner()

	applied, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied < 1 {
		t.Fatalf("Up() applied %d, want at least 1", applied)
	}
	if !tableVisible(ctx, t, db, "app_user") {
		t.Fatal("app_user missing after Up")
	}

	var name string
	if err := db.QueryRowContext(ctx, `SELECT name FROM `+migrationTable+` WHERE version = 1`).Scan(&name); err != nil {
		t.Fatalf("read recorded migration: %v", err)
	}
	if name != "app_user" {
		t.Fatalf("recorded name = %q", name)
	}

	store := authpostgres.NewStore(db)
	if err := store.Create(ctx, "alice", "hash-1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, "alice", "hash-2"); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("duplicate Create() error = %v, want ErrUserExists", err)
	}
	hash, err := store.Get(ctx, "alice")
	if err != nil || hash != "hash-1" {
		t.Fatalf("Get() = %q, %v", hash, err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO app_user (username, password_hash) VALUES ('  ', 'h')`); err == nil {
		t.Fatal("blank username should violate app_user_username_not_blank")
	}

	if again, err := runner.Up(ctx, db, 0); err != nil || again != 0 {
		t.Fatalf("second Up() = %d, %v; want 0, nil", again, err)
	}
	status, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status.Pending) != 0 {
		t.Fatalf("pending after Up: %v", status.Pending)
	}

	if rolledBack, err := runner.Down(ctx, db, 1); err != nil || rolledBack != 1 {
		t.Fatalf("Down() = %d, %v; want 1, nil", rolledBack, err)
	}
	if tableVisible(ctx, t, db, "app_user") {
		t.Fatal("app_user still present after Down")
	}
}

// openIsolatedSchema points a fresh pool at a throwaway schema via search_path
// so parallel runs against a shared database do not collide.
func openIsolatedSchema(ctx context.Context, t *testing.T, dsn string) *sql.DB {
	t.Helper()

	admin, err := authpostgres.Open(ctx, authpostgres.DBConfig{DSN: dsn, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open admin pool: %v", err)
	}
	schema := fmt.Sprintf("autosql_it_%d", time.Now().UnixNano())
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA `+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	query := parsed.Query()
	query.Set("search_path", schema)
	parsed.RawQuery = query.Encode()

	db, err := authpostgres.Open(ctx, authpostgres.DBConfig{DSN: parsed.String(), MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("open schema pool: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		if _, err := admin.Exec(`DROP SCHEMA ` + schema + ` CASCADE`); err != nil {
			t.Errorf("drop schema: %v", err)
		}
		_ = admin.Close()
	})
	return db
}

func tableVisible(ctx context.Context, t *testing.T, db *sql.DB, table string) bool {
	t.Helper()

	var found sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, table).Scan(&found); err != nil {
		t.Fatalf("lookup %s: %v", table, err)
	}
	return found.Valid
}
