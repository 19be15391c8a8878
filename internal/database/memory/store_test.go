package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestPrincipalStore_EmailScope(t *testing.T) {
	ctx := context.Background()

	t.Run("role scope allows same email across roles", func(t *testing.T) {
		s := NewPrincipalStore()
		require.NoError(t, s.Create(ctx, &models.Principal{ID: "p1", Role: models.RoleStudent, Email: "a@uni.edu"}, models.EmailScopeRole))
		require.NoError(t, s.Create(ctx, &models.Principal{ID: "p2", Role: models.RoleHostSupervisor, Email: "a@uni.edu"}, models.EmailScopeRole))

		err := s.Create(ctx, &models.Principal{ID: "p3", Role: models.RoleStudent, Email: "a@uni.edu"}, models.EmailScopeRole)
		assert.ErrorIs(t, err, errors.ErrDuplicateEmail)
	})

	t.Run("global scope rejects same email across roles", func(t *testing.T) {
		s := NewPrincipalStore()
		require.NoError(t, s.Create(ctx, &models.Principal{ID: "p1", Role: models.RoleStudent, Email: "a@uni.edu"}, models.EmailScopeGlobal))

		err := s.Create(ctx, &models.Principal{ID: "p2", Role: models.RoleAdministrator, Email: "a@uni.edu"}, models.EmailScopeGlobal)
		assert.ErrorIs(t, err, errors.ErrDuplicateEmail)
	})

	t.Run("lookup by email is role scoped", func(t *testing.T) {
		s := NewPrincipalStore()
		require.NoError(t, s.Create(ctx, &models.Principal{ID: "p1", Role: models.RoleStudent, Email: "a@uni.edu"}, models.EmailScopeRole))

		p, err := s.GetByEmail(ctx, models.RoleStudent, "a@uni.edu")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)

		_, err = s.GetByEmail(ctx, models.RoleAdministrator, "a@uni.edu")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestPositionStore_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	require.NoError(t, s.Create(ctx, &models.Position{ID: "pos", Capacity: 1, Active: true}))

	p, err := s.TryReserve(ctx, "pos", now)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Reserved)

	_, err = s.TryReserve(ctx, "pos", now)
	assert.ErrorIs(t, err, errors.ErrNoCapacity)

	_, err = s.UpdateCapacity(ctx, "pos", 0, now)
	assert.ErrorIs(t, err, errors.ErrCapacityBelowReserved)

	p, err = s.Release(ctx, "pos", now)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Reserved)

	_, err = s.Release(ctx, "pos", now)
	assert.ErrorIs(t, err, errors.ErrConflict)

	_, err = s.SetActive(ctx, "pos", false, now)
	require.NoError(t, err)
	_, err = s.TryReserve(ctx, "pos", now)
	assert.ErrorIs(t, err, errors.ErrPositionInactive)

	_, err = s.TryReserve(ctx, "missing", now)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPositionStore_ConcurrentReserveNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	const capacity = 5
	require.NoError(t, s.Create(ctx, &models.Position{ID: "pos", Capacity: capacity, Active: true}))

	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TryReserve(ctx, "pos", now); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), granted.Load())
	p, err := s.GetByID(ctx, "pos")
	require.NoError(t, err)
	assert.Equal(t, capacity, p.Reserved)
}

func TestApplicationStore_LiveUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewApplicationStore()

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := &models.Application{ID: fmt.Sprintf("a%d", i), StudentID: "s1", PositionID: "pos", Status: models.StatusPending, AppliedAt: now}
			if err := s.CreateLive(ctx, a); err == nil {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())

	apps, err := s.ListByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, apps, 1)

	// Withdrawing frees the slot for a new live application
	_, err = s.CompareAndSetStatus(ctx, models.StatusChange{
		ApplicationID: apps[0].ID, From: models.StatusPending, To: models.StatusWithdrawn, At: now,
	})
	require.NoError(t, err)
	require.NoError(t, s.CreateLive(ctx, &models.Application{ID: "again", StudentID: "s1", PositionID: "pos", Status: models.StatusPending, AppliedAt: now}))
}

func TestApplicationStore_CompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewApplicationStore()
	require.NoError(t, s.CreateLive(ctx, &models.Application{ID: "a1", StudentID: "s1", PositionID: "pos", Status: models.StatusPending, AppliedAt: now}))

	reviewer := "r1"
	notes := "good fit"
	a, err := s.CompareAndSetStatus(ctx, models.StatusChange{
		ApplicationID: "a1", From: models.StatusPending, To: models.StatusUnderReview, ReviewerID: &reviewer, Notes: &notes, At: now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, a.Status)
	require.NotNil(t, a.ReviewedBy)
	assert.Equal(t, "r1", *a.ReviewedBy)
	assert.Equal(t, "good fit", *a.ReviewNotes)

	_, err = s.CompareAndSetStatus(ctx, models.StatusChange{
		ApplicationID: "a1", From: models.StatusPending, To: models.StatusApproved, At: now,
	})
	assert.ErrorIs(t, err, errors.ErrConflict)

	_, err = s.CompareAndSetStatus(ctx, models.StatusChange{ApplicationID: "nope", From: models.StatusPending, To: models.StatusApproved})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAttachmentStore_OneActivePerStudent(t *testing.T) {
	ctx := context.Background()
	s := NewAttachmentStore()

	require.NoError(t, s.CreateActive(ctx, &models.Attachment{ID: "t1", ApplicationID: "a1", StudentID: "s1", StartedAt: now}))
	err := s.CreateActive(ctx, &models.Attachment{ID: "t2", ApplicationID: "a2", StudentID: "s1", StartedAt: now})
	assert.ErrorIs(t, err, errors.ErrActiveAttachmentExists)

	reason := "finished"
	ended, err := s.End(ctx, "t1", models.AttachmentCompleted, &reason, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentCompleted, ended.Status)
	require.NotNil(t, ended.EndedAt)

	_, err = s.End(ctx, "t1", models.AttachmentTerminated, nil, now)
	assert.ErrorIs(t, err, errors.ErrConflict)

	_, err = s.GetActiveByStudent(ctx, "s1")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, s.CreateActive(ctx, &models.Attachment{ID: "t2", ApplicationID: "a2", StudentID: "s1", StartedAt: now.Add(2 * time.Hour)}))

	byApp, err := s.GetByApplication(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, "t2", byApp.ID)

	list, err := s.ListByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
