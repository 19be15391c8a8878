package handlers

import (
	"net/http"

	"github.com/attachtrack/attachtrack-api/internal/middleware"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
	apperrors "github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// ApplicationHandler handles the application lifecycle endpoints
type ApplicationHandler struct {
	applications services.ApplicationServiceInterface
}

// NewApplicationHandler creates a new ApplicationHandler
func NewApplicationHandler(applications services.ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{applications: applications}
}

// Create handles POST /api/v1/applications
func (h *ApplicationHandler) Create(c *gin.Context) {
	caller, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	app, err := h.applications.Create(c.Request.Context(), caller, req.StudentID, req.PositionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, app)
}

// Get handles GET /api/v1/applications/:id
func (h *ApplicationHandler) Get(c *gin.Context) {
	caller, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	app, err := h.applications.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

// List handles GET /api/v1/applications?studentId= or ?positionId=
func (h *ApplicationHandler) List(c *gin.Context) {
	caller, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	studentID := c.Query("studentId")
	positionID := c.Query("positionId")

	var apps []*models.Application
	switch {
	case studentID != "" && positionID == "":
		apps, err = h.applications.ListForStudent(c.Request.Context(), caller, studentID)
	case positionID != "" && studentID == "":
		apps, err = h.applications.ListForPosition(c.Request.Context(), caller, positionID)
	default:
		err = apperrors.InvalidInputError("query", "exactly one of studentId or positionId is required")
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := models.ApplicationsResponse{Applications: make([]models.Application, 0, len(apps))}
	for _, a := range apps {
		resp.Applications = append(resp.Applications, *a)
	}
	resp.Total = len(resp.Applications)

	c.JSON(http.StatusOK, resp)
}

// UpdateStatus handles PATCH /api/v1/applications/:id/status
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	reviewer, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.UpdateApplicationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	app, err := h.applications.SetStatus(c.Request.Context(), reviewer, c.Param("id"), req.Status, req.Notes)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

// Withdraw handles PATCH /api/v1/applications/:id/withdraw
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	student, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	app, err := h.applications.Withdraw(c.Request.Context(), student, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

// Revoke handles POST /api/v1/applications/:id/revoke
func (h *ApplicationHandler) Revoke(c *gin.Context) {
	admin, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.RevokeApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	app, err := h.applications.Revoke(c.Request.Context(), admin, c.Param("id"), req.Notes)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}
