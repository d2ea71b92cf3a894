package service

import (
	"context"
	"testing"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService() *AuthService {
	return NewAuthService(memory.NewUserRepository(), "test-secret", time.Hour)
}

func TestRegisterAndLogin(t *testing.T) {
	auth := newAuthService()
	ctx := context.Background()

	user, err := auth.Register(ctx, domain.RegisterUserDTO{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)
	assert.Equal(t, "operator", user.Role)
	assert.Empty(t, user.Password)

	resp, err := auth.Login(ctx, domain.LoginUserDTO{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.Username)

	_, claims, err := auth.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, "operator", claims["role"])
}

func TestRegisterDuplicateUsername(t *testing.T) {
	auth := newAuthService()
	ctx := context.Background()

	_, err := auth.Register(ctx, domain.RegisterUserDTO{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)

	_, err = auth.Register(ctx, domain.RegisterUserDTO{Username: "alice", Password: "other-pw"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLoginWrongPassword(t *testing.T) {
	auth := newAuthService()
	ctx := context.Background()

	_, err := auth.Register(ctx, domain.RegisterUserDTO{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)

	_, err = auth.Login(ctx, domain.LoginUserDTO{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, domain.LoginUserDTO{Username: "nobody", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	auth := newAuthService()
	_, _, err := auth.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
