package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_LoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := e.register(t, models.RoleStudent, "s@uni.edu")

	pair, p, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
	require.NoError(t, err)
	assert.Equal(t, s.ID, p.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	got, claims, err := e.guard.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, jwt.KindAccess, claims.Kind)

	// A refresh token is not an access token
	_, _, err = e.guard.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)

	_, _, err = e.auth.Login(ctx, "student", "s@uni.edu", "wrong secret!")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestGuard_TokenRoleBinding(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.register(t, models.RoleStudent, "s@uni.edu")

	pair, _, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
	require.NoError(t, err)

	p, _, err := e.guard.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	assert.NoError(t, e.guard.Authorize(p, models.NewRoleSet(models.RoleStudent)))
	assert.ErrorIs(t, e.guard.Authorize(p, models.NewRoleSet(models.RoleAdministrator)), errors.ErrForbidden)
	assert.ErrorIs(t, e.guard.Authorize(p, models.ReviewerRoles), errors.ErrForbidden)
	assert.ErrorIs(t, services.Authorize(nil, models.ReviewerRoles), errors.ErrUnauthenticated)
}

func TestGuard_RejectsForgedRoleClaim(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := e.register(t, models.RoleStudent, "s@uni.edu")

	// A validly signed token whose role differs from the stored principal
	pair, err := e.tokens.IssuePair(s.ID, string(models.RoleAdministrator))
	require.NoError(t, err)

	_, _, err = e.guard.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestGuard_RejectsInactiveAndUnknownPrincipals(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := e.register(t, models.RoleStudent, "s@uni.edu")

	pair, _, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
	require.NoError(t, err)

	_, err = e.credentials.Deactivate(ctx, e.admin, s.ID)
	require.NoError(t, err)

	_, _, err = e.guard.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)

	ghost, err := e.tokens.IssuePair("no-such-principal", string(models.RoleStudent))
	require.NoError(t, err)
	_, _, err = e.guard.Authenticate(ctx, ghost.AccessToken)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)

	_, _, err = e.guard.Authenticate(ctx, "")
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestGuard_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	issuedAt := time.Now().Add(-3 * time.Hour)
	e := newEnvWith(t, newEnvOptions{clock: func() time.Time { return issuedAt }})
	e.register(t, models.RoleStudent, "s@uni.edu")

	pair, _, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
	require.NoError(t, err)

	fresh := jwt.NewTokenManager("test-secret-key-for-tokens", "attachtrack-test", time.Hour, 14*24*time.Hour)
	_, err = fresh.Verify(pair.AccessToken, jwt.KindAccess)
	assert.ErrorIs(t, err, jwt.ErrExpiredToken)
}

func TestAuthService_LogoutRevokesAccessToken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.register(t, models.RoleStudent, "s@uni.edu")

	pair, _, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
	require.NoError(t, err)

	_, claims, err := e.guard.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, e.auth.Logout(ctx, claims))

	_, _, err = e.guard.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("stateless refresh keeps the old token usable", func(t *testing.T) {
		e := newEnv(t)
		e.register(t, models.RoleStudent, "s@uni.edu")
		pair, _, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
		require.NoError(t, err)

		next, err := e.auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair.AccessToken, next.AccessToken)

		_, err = e.auth.Refresh(ctx, pair.RefreshToken)
		assert.NoError(t, err)

		_, err = e.auth.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	})

	t.Run("rotation makes refresh tokens single use", func(t *testing.T) {
		e := newEnvWith(t, newEnvOptions{rotateRefresh: true})
		e.register(t, models.RoleStudent, "s@uni.edu")
		pair, _, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
		require.NoError(t, err)

		_, err = e.auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)

		_, err = e.auth.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	})

	t.Run("secret change does not revoke issued tokens", func(t *testing.T) {
		e := newEnv(t)
		s := e.register(t, models.RoleStudent, "s@uni.edu")
		pair, _, err := e.auth.Login(ctx, "student", "s@uni.edu", testSecret)
		require.NoError(t, err)

		require.NoError(t, e.credentials.SetSecret(ctx, s.ID, "a different secret"))

		_, _, err = e.guard.Authenticate(ctx, pair.AccessToken)
		assert.NoError(t, err)
	})
}
