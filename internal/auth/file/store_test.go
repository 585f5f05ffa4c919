package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosql/autosql/internal/auth"
)

func TestStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestStoreWritesFlatJSONDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "alice", "hash-a"))
	require.NoError(t, store.Create(ctx, "bob", "hash-b"))
	assert.ErrorIs(t, store.Create(ctx, "alice", "other"), auth.ErrUserExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var users map[string]string
	require.NoError(t, json.Unmarshal(data, &users))
	assert.Equal(t, map[string]string{"alice": "hash-a", "bob": "hash-b"}, users)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStoreRereadsFileOnLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"carol": "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"}`), 0o600))

	hash, err := store.Get(context.Background(), "carol")
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword(hash, "password"))
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	store, err := NewStore(path)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrUserNotFound)
}

func TestNewStoreRequiresPath(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}
