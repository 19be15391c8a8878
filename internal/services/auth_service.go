package services

import (
	"context"

	"github.com/attachtrack/attachtrack-api/internal/cache"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/jwt"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/attachtrack/attachtrack-api/pkg/metrics"
	"go.uber.org/zap"
)

// AuthService issues, refreshes and revokes session tokens
type AuthService struct {
	credentials   *CredentialService
	tokens        *jwt.TokenManager
	revocations   cache.RevocationList
	rotateRefresh bool
}

// NewAuthService creates a new AuthService. With rotateRefresh set, a refresh
// token can be exchanged only once.
func NewAuthService(credentials *CredentialService, tokens *jwt.TokenManager, revocations cache.RevocationList, rotateRefresh bool) *AuthService {
	return &AuthService{
		credentials:   credentials,
		tokens:        tokens,
		revocations:   revocations,
		rotateRefresh: rotateRefresh,
	}
}

// Login verifies credentials and issues a token pair bound to the principal's role
func (s *AuthService) Login(ctx context.Context, role, email, secret string) (*jwt.TokenPair, *models.Principal, error) {
	r, _ := models.ParseRole(role)

	p, err := s.credentials.Verify(ctx, r, email, secret)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", roleLabel(r), "failure").Inc()
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(p.ID, string(p.Role))
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", roleLabel(r), "error").Inc()
		return nil, nil, errors.InternalError("failed to issue tokens", err)
	}

	metrics.AuthAttempts.WithLabelValues("login", roleLabel(r), "success").Inc()
	logger.Info("Principal logged in",
		zap.String("principal_id", p.ID),
		zap.String("role", string(p.Role)))

	return pair, p, nil
}

// Refresh exchanges a refresh token for a new pair. The principal must still be
// active and hold the role named in the token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	pair, claims, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("refresh", "unknown", "failure").Inc()
		logger.Debug("Refresh token rejected", zap.Error(err))
		return nil, errors.ErrUnauthenticated
	}

	if _, err := s.checkClaims(ctx, claims); err != nil {
		metrics.AuthAttempts.WithLabelValues("refresh", claims.Role, "failure").Inc()
		return nil, err
	}

	if s.rotateRefresh {
		if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return nil, errors.InternalError("failed to rotate refresh token", err)
		}
	}

	metrics.AuthAttempts.WithLabelValues("refresh", claims.Role, "success").Inc()
	return pair, nil
}

// Logout revokes the presented access token for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, claims *jwt.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return errors.ErrUnauthenticated
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return errors.InternalError("failed to revoke token", err)
	}

	logger.Info("Principal logged out", zap.String("principal_id", claims.PrincipalID))
	return nil
}

// checkClaims rejects revoked tokens and tokens whose principal is gone,
// inactive or no longer holds the claimed role
func (s *AuthService) checkClaims(ctx context.Context, claims *jwt.Claims) (*models.Principal, error) {
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, errors.InternalError("failed to check token revocation", err)
	}
	if revoked {
		logger.Debug("Revoked token presented", zap.String("principal_id", claims.PrincipalID))
		return nil, errors.ErrUnauthenticated
	}

	p, err := s.credentials.Get(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrUnauthenticated
		}
		return nil, err
	}
	if !p.Active {
		logger.Debug("Token for inactive principal", zap.String("principal_id", p.ID))
		return nil, errors.ErrUnauthenticated
	}
	if string(p.Role) != claims.Role {
		logger.Warn("Token role does not match principal",
			zap.String("principal_id", p.ID),
			zap.String("token_role", claims.Role),
			zap.String("principal_role", string(p.Role)))
		return nil, errors.ErrUnauthenticated
	}

	return p, nil
}

func roleLabel(r models.Role) string {
	if r.IsValid() {
		return string(r)
	}
	return "unknown"
}
