package models

import (
	"time"
)

// ApplicationStatus represents the status of a student's application
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "pending"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusApproved    ApplicationStatus = "approved"
	StatusRejected    ApplicationStatus = "rejected"
	StatusWithdrawn   ApplicationStatus = "withdrawn"
)

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// IsLive returns true for pending, under_review and approved
func (s ApplicationStatus) IsLive() bool {
	return s == StatusPending || s == StatusUnderReview || s == StatusApproved
}

// IsOpen returns true while the application is still awaiting a decision
func (s ApplicationStatus) IsOpen() bool {
	return s == StatusPending || s == StatusUnderReview
}

// CanReviewerTransitionTo checks a reviewer-initiated transition.
// Withdrawal belongs to the owning student and approved → rejected to Revoke,
// so neither is reachable here.
func (s ApplicationStatus) CanReviewerTransitionTo(next ApplicationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusUnderReview || next == StatusApproved || next == StatusRejected
	case StatusUnderReview:
		return next == StatusApproved || next == StatusRejected
	default:
		return false
	}
}

// CanWithdraw reports whether the owning student may withdraw
func (s ApplicationStatus) CanWithdraw() bool {
	return s.IsOpen()
}

// Application is a student's request to fill a position
type Application struct {
	ID          string            `json:"id"`
	StudentID   string            `json:"studentId"`
	PositionID  string            `json:"positionId"`
	Status      ApplicationStatus `json:"status"`
	AppliedAt   time.Time         `json:"appliedAt"`
	ReviewedBy  *string           `json:"reviewedBy"`
	ReviewedAt  *time.Time        `json:"reviewedAt"`
	ReviewNotes *string           `json:"reviewNotes"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Review returns a copy of the application's review fields
func (a *Application) Review() ReviewFields {
	var r ReviewFields
	if a.ReviewedBy != nil {
		v := *a.ReviewedBy
		r.ReviewedBy = &v
	}
	if a.ReviewedAt != nil {
		v := *a.ReviewedAt
		r.ReviewedAt = &v
	}
	if a.ReviewNotes != nil {
		v := *a.ReviewNotes
		r.ReviewNotes = &v
	}
	return r
}

// ReviewFields is the reviewer, review time and notes recorded on an application
type ReviewFields struct {
	ReviewedBy  *string
	ReviewedAt  *time.Time
	ReviewNotes *string
}

// StatusChange describes a compare-and-set status write.
// ReviewerID and Notes overwrite the review fields only when set.
// Restore, when set, replaces all three review fields verbatim (nil clears)
// and ReviewerID/Notes are ignored.
type StatusChange struct {
	ApplicationID string
	From          ApplicationStatus
	To            ApplicationStatus
	ReviewerID    *string
	Notes         *string
	Restore       *ReviewFields
	At            time.Time
}

// CreateApplicationRequest is the payload for applying to a position
type CreateApplicationRequest struct {
	StudentID  string `json:"studentId" binding:"required,max=64"`
	PositionID string `json:"positionId" binding:"required,max=64"`
}

// UpdateApplicationStatusRequest is the payload for reviewer status changes
type UpdateApplicationStatusRequest struct {
	Status ApplicationStatus `json:"status" binding:"required,oneof=pending under_review approved rejected withdrawn"`
	Notes  string            `json:"notes" binding:"max=2000"`
}

// RevokeApplicationRequest is the payload for reversing an approval
type RevokeApplicationRequest struct {
	Notes string `json:"notes" binding:"required,max=2000"`
}

// ApplicationsResponse is the response for listing applications
type ApplicationsResponse struct {
	Applications []Application `json:"applications"`
	Total        int           `json:"total"`
}
