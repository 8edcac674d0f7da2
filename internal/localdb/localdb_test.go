package localdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLatestToken_Empty(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LatestToken()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestSaveToken_LatestWins(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveToken(Token{AccessToken: "a1", RefreshToken: "r1", Scope: "chat:read", ExpiresAt: 100}))
	require.NoError(t, db.SaveToken(Token{AccessToken: "a2", RefreshToken: "r2", Scope: "chat:read", ExpiresAt: 200}))

	got, err := db.LatestToken()
	require.NoError(t, err)
	assert.Equal(t, Token{AccessToken: "a2", RefreshToken: "r2", Scope: "chat:read", ExpiresAt: 200}, got)
}

func TestDeleteAllTokens(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveToken(Token{AccessToken: "a"}))

	require.NoError(t, db.DeleteAllTokens())

	_, err := db.LatestToken()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveToken(Token{AccessToken: "keep", ExpiresAt: 42}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.LatestToken()
	require.NoError(t, err)
	assert.Equal(t, "keep", got.AccessToken)
}
