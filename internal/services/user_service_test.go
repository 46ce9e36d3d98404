package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/core/memstore"
)

func newTestUserService() *UserService {
	s := NewUserService(memstore.New())
	s.cost = bcrypt.MinCost
	return s
}

func TestSignupAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestUserService()

	u, err := s.Signup(ctx, " hana ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "hana", u.Username)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)

	got, err := s.Authenticate(ctx, "hana", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, "hana", "wrong-pass")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	_, err = s.Authenticate(ctx, "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestUserService()

	_, err := s.Signup(ctx, "ab", "long-enough")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = s.Signup(ctx, "valid-name", "123")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = s.Signup(ctx, "taken", "long-enough")
	require.NoError(t, err)
	_, err = s.Signup(ctx, "TAKEN", "long-enough")
	assert.ErrorIs(t, err, core.ErrConflict)
}
