package handlers

import (
	"net/http"

	"github.com/attachtrack/attachtrack-api/internal/middleware"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
	apperrors "github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// PositionHandler handles position and capacity endpoints
type PositionHandler struct {
	ledger services.LedgerServiceInterface
}

// NewPositionHandler creates a new PositionHandler
func NewPositionHandler(ledger services.LedgerServiceInterface) *PositionHandler {
	return &PositionHandler{ledger: ledger}
}

func positionResponse(p *models.Position) models.PositionResponse {
	return models.PositionResponse{Position: *p, AvailableSlots: p.AvailableSlots()}
}

// Create handles POST /api/v1/positions
func (h *PositionHandler) Create(c *gin.Context) {
	actor, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.CreatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	position, err := h.ledger.CreatePosition(c.Request.Context(), actor, req.OrganizationID, req.Title, *req.Capacity)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, positionResponse(position))
}

// Get handles GET /api/v1/positions/:id
func (h *PositionHandler) Get(c *gin.Context) {
	position, err := h.ledger.GetPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, positionResponse(position))
}

// UpdateCapacity handles PATCH /api/v1/positions/:id/capacity
func (h *PositionHandler) UpdateCapacity(c *gin.Context) {
	actor, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	position, err := h.ledger.UpdateCapacity(c.Request.Context(), actor, c.Param("id"), *req.Capacity)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, positionResponse(position))
}

// SetActive handles PATCH /api/v1/positions/:id/active
func (h *PositionHandler) SetActive(c *gin.Context) {
	actor, err := middleware.GetPrincipal(c)
	if err != nil {
		respondServiceError(c, apperrors.ErrUnauthenticated)
		return
	}

	var req models.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	position, err := h.ledger.SetActive(c.Request.Context(), actor, c.Param("id"), *req.Active)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, positionResponse(position))
}
