package handlers

import (
	"net/http"

	"github.com/attachtrack/attachtrack-api/internal/middleware"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
	apperrors "github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles registration, login and session endpoints
type AuthHandler struct {
	credentials services.CredentialServiceInterface
	auth        services.AuthServiceInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(credentials services.CredentialServiceInterface, auth services.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		auth:        auth,
	}
}

// Register handles POST /api/v1/auth/register.
// Self-service registration is open to students only.
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	role, ok := models.ParseRole(req.Role)
	if !ok {
		respondServiceError(c, apperrors.ErrInvalidRole)
		return
	}
	if role != models.RoleStudent {
		respondServiceError(c, apperrors.ForbiddenError("only students may self-register"))
		return
	}

	principal, err := h.credentials.Register(c.Request.Context(), role, req.Email, req.Secret, req.FullName)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, principal.Summary())
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	pair, principal, err := h.auth.Login(c.Request.Context(), req.Role, req.Email, req.Secret)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tokens":    pair,
		"principal": principal.Summary(),
	})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

// Logout handles POST /api/v1/auth/logout by revoking the presented access token
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, err := middleware.GetClaims(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), claims); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	c.JSON(http.StatusOK, principal.Summary())
}

// ChangePassword handles POST /api/v1/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.ChangeSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.credentials.ChangeSecret(c.Request.Context(), principal.ID, req.CurrentSecret, req.NewSecret); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
