package models

import "time"

// AttachmentStatus represents the state of a placement
type AttachmentStatus string

const (
	AttachmentActive     AttachmentStatus = "active"
	AttachmentCompleted  AttachmentStatus = "completed"
	AttachmentTerminated AttachmentStatus = "terminated"
)

func (s AttachmentStatus) IsValid() bool {
	return s == AttachmentActive || s == AttachmentCompleted || s == AttachmentTerminated
}

// IsEnded returns true for completed and terminated
func (s AttachmentStatus) IsEnded() bool {
	return s == AttachmentCompleted || s == AttachmentTerminated
}

// Attachment is the in-progress placement created from an approved application
type Attachment struct {
	ID             string           `json:"id"`
	ApplicationID  string           `json:"applicationId"`
	StudentID      string           `json:"studentId"`
	OrganizationID string           `json:"organizationId"`
	PositionID     string           `json:"positionId"`
	Status         AttachmentStatus `json:"status"`
	StartedAt      time.Time        `json:"startedAt"`
	EndedAt        *time.Time       `json:"endedAt"`
	EndReason      *string          `json:"endReason"`
}

// EndAttachmentRequest is the payload for completing or terminating an attachment
type EndAttachmentRequest struct {
	Status AttachmentStatus `json:"status" binding:"required,oneof=completed terminated"`
	Reason string           `json:"reason" binding:"max=2000"`
}

// AttachmentsResponse is the response for listing attachments
type AttachmentsResponse struct {
	Attachments []Attachment `json:"attachments"`
	Total       int          `json:"total"`
}
