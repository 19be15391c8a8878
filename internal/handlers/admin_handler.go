package handlers

import (
	"net/http"

	"github.com/attachtrack/attachtrack-api/internal/middleware"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
	apperrors "github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// AdminHandler handles principal management by administrators
type AdminHandler struct {
	credentials services.CredentialServiceInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(credentials services.CredentialServiceInterface) *AdminHandler {
	return &AdminHandler{credentials: credentials}
}

// CreatePrincipal handles POST /api/v1/admin/principals for any role
func (h *AdminHandler) CreatePrincipal(c *gin.Context) {
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

	principal, err := h.credentials.Register(c.Request.Context(), role, req.Email, req.Secret, req.FullName)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, principal.Summary())
}

// GetPrincipal handles GET /api/v1/admin/principals/:id
func (h *AdminHandler) GetPrincipal(c *gin.Context) {
	principal, err := h.credentials.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, principal.Summary())
}

// Deactivate handles POST /api/v1/admin/principals/:id/deactivate
func (h *AdminHandler) Deactivate(c *gin.Context) {
	actor, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	principal, err := h.credentials.Deactivate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, principal.Summary())
}
