//go:build integration

package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"

	"github.com/autosql/autosql/internal/auth"
	authpostgres "github.com/autosql/autosql/internal/auth/postgres"
	"github.com/autosql/autosql/internal/migrations"
	"github.com/autosql/autosql/internal/query/duckdb"
	"github.com/autosql/autosql/internal/session"
)

func TestRegisterLoginAndQueryWithPostgresCredentials(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("AUTOSQL_TEST_CREDENTIALS_DSN"))
	if adminDSN == "" {
		t.Skip("AUTOSQL_TEST_CREDENTIALS_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	db, err := authpostgres.Open(ctx, authpostgres.DBConfig{DSN: testDSN})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}

	sessions := session.NewManager(duckdb.Factory(0), time.Hour)
	defer func() { _ = sessions.Close() }()

	cfg := loadTestConfig(t, nil)
	srv := &testServer{
		handler: NewHandler(cfg, Dependencies{
			Auth:       auth.NewService(authpostgres.NewStore(db), bcrypt.MinCost),
			Sessions:   sessions,
			Translator: &fakeTranslator{},
		}),
		sessions: sessions,
	}

	token := srv.login(t, "alice", "pw")
	if rr := srv.postJSON(t, "/v1/auth/register", "", `{"username":"alice","password":"other"}`); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rr.Code)
	}

	if rr := srv.upload(t, token, "employees.csv", employeesCSV); rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d body=%s", rr.Code, rr.Body.String())
	}
	rr := srv.postJSON(t, "/v1/query", token, `{"sql":"SELECT COUNT(*) AS n FROM user_data"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("query status = %d body=%s", rr.Code, rr.Body.String())
	}

	var stored string
	if err := db.QueryRowContext(ctx, `SELECT password_hash FROM app_user WHERE username = $1`, "alice").Scan(&stored); err != nil {
		t.Fatalf("select password hash: %v", err)
	}
	if !auth.VerifyPassword(stored, "pw") {
		t.Fatal("stored hash does not verify")
	}
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse(adminDSN) error = %v", err)
	}
	adminDBName := strings.TrimPrefix(parsed.Path, "/")
	if adminDBName == "" {
		t.Fatal("admin DSN must include a database name")
	}

	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(adminDSN) error = %v", err)
	}

	name := fmt.Sprintf("autosql_it_api_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	testURL := *parsed
	testURL.Path = "/" + name
	testDSN := testURL.String()

	cleanup := func() {
		defer func() { _ = adminDB.Close() }()
		if _, err := adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name); err != nil {
			t.Fatalf("terminate test db sessions: %v", err)
		}
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
	return testDSN, cleanup
}
