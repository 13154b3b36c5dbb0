package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/conversation-assistant/internal/store"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserService(db, zerolog.Nop())
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " Ada@Example.com ", "changethis", nil)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "changethis", user.HashedPassword)

	got, err := svc.Authenticate(ctx, "ada@example.com", "changethis")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong")
	requireKind(t, err, KindUnauthorized, DetailIncorrectCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "changethis")
	requireKind(t, err, KindUnauthorized, DetailIncorrectCredentials)

	byID, err := svc.UserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	_, err = svc.UserByID(ctx, 12345)
	requireKind(t, err, KindNotFound, DetailUserNotFound)
}

func TestRegisterValidation(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "pw", nil)
	requireKind(t, err, KindValidation, DetailInvalidRegistration)

	_, err = svc.Register(ctx, "ada@example.com", "pw", nil)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "ADA@example.com", "pw", nil)
	requireKind(t, err, KindConflict, DetailEmailTaken)
}
