package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/models"
)

func testCredential() models.Credential {
	return models.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Role:         models.RoleOperator,
		Username:     "operator",
		UserID:       "7",
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlStore, err := NewSQLStore("sqlite", filepath.Join(dir, "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "nested", "credentials.yaml")),
		"sqlite": sqlStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range openStores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			cred, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, cred, "empty store loads nothing")

			require.NoError(t, store.Save(ctx, testCredential()))
			cred, err = store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, cred)
			assert.Equal(t, testCredential(), *cred)

			require.NoError(t, store.UpdateField(ctx, models.FieldUsername, "renamed"))
			cred, err = store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, cred)
			assert.Equal(t, "renamed", cred.Username)
			assert.Equal(t, "access-1", cred.AccessToken)
			assert.Equal(t, "refresh-1", cred.RefreshToken)

			err = store.UpdateField(ctx, "password", "x")
			assert.ErrorIs(t, err, ErrUnknownField)

			next := testCredential()
			next.AccessToken = "access-2"
			next.Role = models.RoleAdmin
			require.NoError(t, store.Save(ctx, next))
			cred, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, next, *cred)

			require.NoError(t, store.Clear(ctx))
			require.NoError(t, store.Clear(ctx), "clear is idempotent")
			cred, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, cred)
		})
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "credentials.yaml"))
	require.NoError(t, store.Save(context.Background(), testCredential()))
	require.NoError(t, store.UpdateField(context.Background(), models.FieldUserID, "8"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "credentials.yaml", entries[0].Name())
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("access_token: [unterminated"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestSQLStoreRebind(t *testing.T) {
	t.Parallel()

	s := &SQLStore{driver: "postgres"}
	assert.Equal(t, "INSERT INTO credentials (key, value) VALUES ($1, $2)",
		s.rebind("INSERT INTO credentials (key, value) VALUES (?, ?)"))

	s = &SQLStore{driver: "sqlite"}
	assert.Equal(t, "SELECT ?", s.rebind("SELECT ?"))
}

func TestOpen(t *testing.T) {
	t.Parallel()

	store, err := Open(config.TokenStoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(config.TokenStoreConfig{Driver: "file", Path: filepath.Join(t.TempDir(), "c.yaml")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = Open(config.TokenStoreConfig{Driver: "etcd"})
	assert.Error(t, err)
}
