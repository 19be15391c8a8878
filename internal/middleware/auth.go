package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
	apperrors "github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/jwt"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// PrincipalContextKey is the key used to store the authenticated principal in context
	PrincipalContextKey = "principal"

	// ClaimsContextKey is the key used to store the verified access claims in context
	ClaimsContextKey = "token_claims"

	bearerPrefix = "Bearer "
)

var (
	ErrPrincipalNotFound = errors.New("principal not found in context")
	ErrInvalidPrincipal  = errors.New("invalid principal type")
)

// RequireRoles authenticates the bearer token and admits only the listed roles.
// With no roles every authenticated principal is admitted.
func RequireRoles(guard services.GuardInterface, roles ...models.Role) gin.HandlerFunc {
	var allowed models.RoleSet
	if len(roles) == 0 {
		allowed = models.NewRoleSet(models.AllRoles...)
	} else {
		allowed = models.NewRoleSet(roles...)
	}

	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			logger.Warn("Missing bearer token",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))
			abortWithKind(c, http.StatusUnauthorized, "Unauthorized", apperrors.KindUnauthenticated)
			return
		}

		principal, claims, err := guard.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindInternal {
				logger.Error("Authentication backend failed",
					zap.Error(err),
					zap.String("path", c.Request.URL.Path))
				abortWithKind(c, http.StatusInternalServerError, "Internal server error", apperrors.KindInternal)
				return
			}
			logger.Warn("Invalid bearer token",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))
			abortWithKind(c, http.StatusUnauthorized, "Unauthorized", apperrors.KindUnauthenticated)
			return
		}

		if err := guard.Authorize(principal, allowed); err != nil {
			logger.Warn("Role not allowed on route",
				zap.String("path", c.Request.URL.Path),
				zap.String("principal_id", principal.ID),
				zap.String("role", string(principal.Role)))
			abortWithKind(c, http.StatusForbidden, "Forbidden", apperrors.KindForbidden)
			return
		}

		c.Set(PrincipalContextKey, principal)
		c.Set(ClaimsContextKey, claims)
		c.Next()
	}
}

// GetPrincipal extracts the authenticated principal from context
func GetPrincipal(c *gin.Context) (*models.Principal, error) {
	val, exists := c.Get(PrincipalContextKey)
	if !exists {
		return nil, ErrPrincipalNotFound
	}

	principal, ok := val.(*models.Principal)
	if !ok {
		return nil, ErrInvalidPrincipal
	}

	return principal, nil
}

// GetClaims extracts the verified access token claims from context
func GetClaims(c *gin.Context) (*jwt.Claims, error) {
	val, exists := c.Get(ClaimsContextKey)
	if !exists {
		return nil, ErrPrincipalNotFound
	}

	claims, ok := val.(*jwt.Claims)
	if !ok {
		return nil, ErrInvalidPrincipal
	}

	return claims, nil
}

func bearerToken(header string) string {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

func abortWithKind(c *gin.Context, status int, msg string, kind apperrors.Kind) {
	c.JSON(status, gin.H{"error": msg, "kind": kind})
	c.Abort()
}
