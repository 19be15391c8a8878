package models

import "time"

// Position is a capacity-bounded placement offered by an organization.
// Reserved counts approved applications currently holding a slot.
type Position struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Title          string    `json:"title"`
	Capacity       int       `json:"capacity"`
	Reserved       int       `json:"reserved"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AvailableSlots returns capacity minus reserved, never negative
func (p *Position) AvailableSlots() int {
	if p.Reserved >= p.Capacity {
		return 0
	}
	return p.Capacity - p.Reserved
}

// Reservation is one unit of capacity taken on a position
type Reservation struct {
	PositionID string    `json:"positionId"`
	Remaining  int       `json:"remaining"`
	TakenAt    time.Time `json:"takenAt"`
}

// CreatePositionRequest is the payload for creating a position
type CreatePositionRequest struct {
	OrganizationID string `json:"organizationId" binding:"required,max=100"`
	Title          string `json:"title" binding:"required,max=200"`
	Capacity       *int   `json:"capacity" binding:"required,min=0,max=10000"`
}

// UpdateCapacityRequest is the payload for changing capacity
type UpdateCapacityRequest struct {
	Capacity *int `json:"capacity" binding:"required,min=0,max=10000"`
}

// SetActiveRequest toggles whether a position accepts applications
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PositionResponse adds the derived slot count
type PositionResponse struct {
	Position
	AvailableSlots int `json:"availableSlots"`
}
