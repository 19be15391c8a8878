package services

import (
	"context"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/jwt"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"go.uber.org/zap"
)

// Guard authenticates bearer tokens and checks role allow-lists
type Guard struct {
	auth   *AuthService
	tokens *jwt.TokenManager
}

// NewGuard creates a new Guard
func NewGuard(auth *AuthService, tokens *jwt.TokenManager) *Guard {
	return &Guard{auth: auth, tokens: tokens}
}

// Authenticate resolves an access token to its principal. Any token or
// principal problem is reported as ErrUnauthenticated.
func (g *Guard) Authenticate(ctx context.Context, rawToken string) (*models.Principal, *jwt.Claims, error) {
	if rawToken == "" {
		return nil, nil, errors.ErrUnauthenticated
	}

	claims, err := g.tokens.Verify(rawToken, jwt.KindAccess)
	if err != nil {
		logger.Debug("Access token rejected", zap.Error(err))
		return nil, nil, errors.ErrUnauthenticated
	}

	p, err := g.auth.checkClaims(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	return p, claims, nil
}

// Authorize succeeds iff the principal's role is in allowed
func (g *Guard) Authorize(p *models.Principal, allowed models.RoleSet) error {
	return Authorize(p, allowed)
}

// Authorize is the pure role check behind Guard.Authorize
func Authorize(p *models.Principal, allowed models.RoleSet) error {
	if p == nil {
		return errors.ErrUnauthenticated
	}
	if !allowed.Contains(p.Role) {
		return errors.ForbiddenError("role " + string(p.Role) + " is not allowed")
	}
	return nil
}
