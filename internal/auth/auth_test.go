package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trk-project/trk/internal/models"
	"github.com/trk-project/trk/internal/store"
)

func newTestAuth(t *testing.T) (*Authenticator, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewAuthenticator(s), s
}

func registerUser(t *testing.T, s store.Store, handle, password string) *models.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	u := &models.User{Handle: handle, Email: handle + "@example.com", PasswordHash: hash}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func TestLoginAndResolve(t *testing.T) {
	a, s := newTestAuth(t)
	ctx := context.Background()

	u := registerUser(t, s, "alice", "correcthorse")

	token, err := a.Login(ctx, "alice", "correcthorse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "trk_"))

	actor, err := a.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, actor.ID)
	assert.False(t, actor.Superuser)
}

func TestLogin_BadCredentials(t *testing.T) {
	a, s := newTestAuth(t)
	ctx := context.Background()

	registerUser(t, s, "alice", "correcthorse")

	_, err := a.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown handle yields the same error as a wrong password.
	_, err = a.Login(ctx, "mallory", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolve_InvalidToken(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := a.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Resolve(ctx, "trk_deadbeef")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenStoredHashed(t *testing.T) {
	a, s := newTestAuth(t)
	ctx := context.Background()

	u := registerUser(t, s, "alice", "correcthorse")
	token, err := a.MintToken(ctx, u)
	require.NoError(t, err)

	// The raw token must not resolve as its own stored digest.
	_, err = s.GetUserByTokenHash(ctx, token)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLogout_RevokesAllTokens(t *testing.T) {
	a, s := newTestAuth(t)
	ctx := context.Background()

	u := registerUser(t, s, "alice", "correcthorse")

	t1, err := a.MintToken(ctx, u)
	require.NoError(t, err)
	t2, err := a.MintToken(ctx, u)
	require.NoError(t, err)

	require.NoError(t, a.Logout(ctx, u.ID))

	_, err = a.Resolve(ctx, t1)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Resolve(ctx, t2)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
