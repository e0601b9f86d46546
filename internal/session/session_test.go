package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelnotes/reelnotes-backend/internal/auth/service"
	"github.com/reelnotes/reelnotes-backend/internal/storage/sqlitestore"
)

func newAuth(t *testing.T) *service.AuthService {
	t.Helper()
	store, err := sqlitestore.Open(":memory:", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return service.NewAuthService(store, time.Hour, service.WithBcryptCost(bcrypt.MinCost))
}

func TestRestoreAndTeardown(t *testing.T) {
	authSvc := newAuth(t)
	ctx := context.Background()
	user, token, err := authSvc.RegisterUser(ctx, "ada@example.com", "s3cret!", "Ada")
	require.NoError(t, err)

	s := New(authSvc)
	ok, err := s.Restore(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, user.ID, s.UserID())

	s.SetActiveProject("p1")
	require.NoError(t, s.Teardown(ctx))
	assert.False(t, s.SignedIn())
	assert.Empty(t, s.ActiveProjectID())
	assert.Empty(t, s.Token())

	// the persisted session is gone too
	fresh := New(authSvc)
	ok, err = fresh.Restore(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestore_NoSession(t *testing.T) {
	s := New(newAuth(t))
	ok, err := s.Restore(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, s.User())
	assert.NoError(t, s.Teardown(context.Background()))
}

func TestBegin(t *testing.T) {
	authSvc := newAuth(t)
	user, token, err := authSvc.RegisterUser(context.Background(), "ada@example.com", "s3cret!", "")
	require.NoError(t, err)

	s := New(authSvc)
	s.SetActiveProject("stale")
	s.Begin(user, token)
	assert.True(t, s.SignedIn())
	assert.Equal(t, token, s.Token())
	assert.Empty(t, s.ActiveProjectID())
}
