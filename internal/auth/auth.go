package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingCredentials = errors.New("username and password are required")
)

// CredentialStore maps usernames to password hashes.
type CredentialStore interface {
	Get(ctx context.Context, username string) (string, error)
	Create(ctx context.Context, username, passwordHash string) error
}

type Identity struct {
	Username string
	Token    string
}

// TokenValidator resolves a session token to the identity that owns it.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (Identity, bool)
}

type Service struct {
	store CredentialStore
	cost  int
}

func NewService(store CredentialStore, bcryptCost int) *Service {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: store, cost: bcryptCost}
}

func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}

	if _, err := s.store.Get(ctx, username); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.Create(ctx, username, string(hash)); err != nil {
		if errors.Is(err, ErrUserExists) {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Authenticate looks the username up verbatim first so legacy users file keys
// with surrounding whitespace still match, then falls back to the trimmed form.
func (s *Service) Authenticate(ctx context.Context, username, password string) error {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" || password == "" {
		return ErrMissingCredentials
	}

	hash, err := s.store.Get(ctx, username)
	if errors.Is(err, ErrUserNotFound) && trimmed != username {
		hash, err = s.store.Get(ctx, trimmed)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !VerifyPassword(hash, password) {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyPassword accepts bcrypt hashes and unsalted SHA-256 hex digests
// written by earlier versions of the users file.
func VerifyPassword(hash, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	legacy := LegacyHash(password)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(legacy)) == 1
}

func LegacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
