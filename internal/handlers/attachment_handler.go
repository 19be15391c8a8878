package handlers

import (
	"net/http"

	"github.com/attachtrack/attachtrack-api/internal/middleware"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
	apperrors "github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// AttachmentHandler handles attachment queries and termination
type AttachmentHandler struct {
	attachments services.AttachmentServiceInterface
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(attachments services.AttachmentServiceInterface) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Get handles GET /api/v1/attachments/:id
func (h *AttachmentHandler) Get(c *gin.Context) {
	caller, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	attachment, err := h.attachments.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attachment)
}

// ListForStudent handles GET /api/v1/students/:id/attachments.
// ?active=true returns only the current attachment.
func (h *AttachmentHandler) ListForStudent(c *gin.Context) {
	caller, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	studentID := c.Param("id")
	if c.Query("active") == "true" {
		attachment, err := h.attachments.ActiveForStudent(c.Request.Context(), caller, studentID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, attachment)
		return
	}

	list, err := h.attachments.ListForStudent(c.Request.Context(), caller, studentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := models.AttachmentsResponse{Attachments: make([]models.Attachment, 0, len(list))}
	for _, a := range list {
		resp.Attachments = append(resp.Attachments, *a)
	}
	resp.Total = len(resp.Attachments)

	c.JSON(http.StatusOK, resp)
}

// Terminate handles POST /api/v1/attachments/:id/terminate
func (h *AttachmentHandler) Terminate(c *gin.Context) {
	actor, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.EndAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	attachment, err := h.attachments.Terminate(c.Request.Context(), actor, c.Param("id"), req.Status, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attachment)
}
