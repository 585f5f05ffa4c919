package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/autosql/autosql/internal/auth"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("credentials dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open credentials db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping credentials db: %w", err)
	}

	return db, nil
}

// Store keeps credentials in the app_user table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, username string) (string, error) {
	var hash string
	if err := s.db.QueryRowContext(ctx, `
SELECT password_hash
FROM app_user
WHERE username = $1`, username).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", auth.ErrUserNotFound
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	return hash, nil
}

func (s *Store) Create(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
INSERT INTO app_user (username, password_hash)
VALUES ($1, $2)
ON CONFLICT (username) DO NOTHING`, username, passwordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create user rows affected: %w", err)
	}
	if affected == 0 {
		return auth.ErrUserExists
	}
	return nil
}
