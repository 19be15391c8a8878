package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationStatus_CanReviewerTransitionTo(t *testing.T) {
	tests := []struct {
		from     ApplicationStatus
		to       ApplicationStatus
		expected bool
	}{
		{StatusPending, StatusUnderReview, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusWithdrawn, false},
		{StatusPending, StatusPending, false},
		{StatusUnderReview, StatusApproved, true},
		{StatusUnderReview, StatusRejected, true},
		{StatusUnderReview, StatusUnderReview, false},
		{StatusUnderReview, StatusPending, false},
		{StatusApproved, StatusRejected, false},
		{StatusApproved, StatusWithdrawn, false},
		{StatusRejected, StatusApproved, false},
		{StatusRejected, StatusUnderReview, false},
		{StatusWithdrawn, StatusApproved, false},
		{StatusWithdrawn, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanReviewerTransitionTo(tt.to))
		})
	}
}

func TestApplicationStatus_Predicates(t *testing.T) {
	assert.True(t, StatusPending.IsLive())
	assert.True(t, StatusApproved.IsLive())
	assert.False(t, StatusRejected.IsLive())

	assert.False(t, StatusRejected.IsOpen())
	assert.False(t, StatusWithdrawn.IsOpen())

	assert.True(t, StatusUnderReview.CanWithdraw())
	assert.False(t, StatusApproved.CanWithdraw())

	assert.False(t, ApplicationStatus("accepted").IsValid())
}

func TestApplication_ReviewCopiesFields(t *testing.T) {
	by := "sup-1"
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := &Application{ReviewedBy: &by, ReviewedAt: &at}

	r := a.Review()
	require.NotNil(t, r.ReviewedBy)
	assert.Equal(t, "sup-1", *r.ReviewedBy)
	assert.Nil(t, r.ReviewNotes)

	*r.ReviewedBy = "changed"
	assert.Equal(t, "sup-1", *a.ReviewedBy)
}

func TestRole(t *testing.T) {
	r, ok := ParseRole(" Host_Supervisor ")
	assert.True(t, ok)
	assert.Equal(t, RoleHostSupervisor, r)

	_, ok = ParseRole("lecturer")
	assert.False(t, ok)

	assert.True(t, RoleAdministrator.IsReviewer())
	assert.False(t, RoleStudent.IsReviewer())
	assert.False(t, NewRoleSet(RoleStudent).Contains(RoleAdministrator))
}

func TestPosition_AvailableSlots(t *testing.T) {
	assert.Equal(t, 2, (&Position{Capacity: 3, Reserved: 1}).AvailableSlots())
	assert.Equal(t, 0, (&Position{Capacity: 1, Reserved: 1}).AvailableSlots())
	assert.Equal(t, 0, (&Position{Capacity: 0, Reserved: 0}).AvailableSlots())
}
