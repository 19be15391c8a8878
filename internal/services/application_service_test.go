package services_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationService_ApprovalConsumesLastSlot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleHostSupervisor, "host@org.com")
	s1 := e.register(t, models.RoleStudent, "s1@uni.edu")
	s2 := e.register(t, models.RoleStudent, "s2@uni.edu")
	p1 := e.position(t, 1)

	app1 := e.apply(t, s1, p1.ID)
	assert.Equal(t, models.StatusPending, app1.Status)

	approved, err := e.applications.SetStatus(ctx, reviewer, app1.ID, models.StatusApproved, "welcome")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	att, err := e.attachments.ActiveForStudent(ctx, s1, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, app1.ID, att.ApplicationID)
	assert.Equal(t, "org-1", att.OrganizationID)

	slots, err := e.ledger.AvailableSlots(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, slots)

	// Creating an application does not consume capacity
	app2 := e.apply(t, s2, p1.ID)

	_, err = e.applications.SetStatus(ctx, reviewer, app2.ID, models.StatusApproved, "")
	assert.ErrorIs(t, err, errors.ErrNoCapacity)

	unchanged, err := e.applications.Get(ctx, reviewer, app2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, unchanged.Status)
}

func TestApplicationService_WithdrawnIsTerminal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleSchoolSupervisor, "sup@uni.edu")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	pos := e.position(t, 2)
	app := e.apply(t, s, pos.ID)

	withdrawn, err := e.applications.Withdraw(ctx, s, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWithdrawn, withdrawn.Status)

	_, err = e.applications.SetStatus(ctx, reviewer, app.ID, models.StatusApproved, "")
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)

	slots, err := e.ledger.AvailableSlots(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, slots)
}

func TestApplicationService_TerminalStatusesRejectEveryChange(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleAdministrator, "admin2@uni.edu")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	posA := e.position(t, 5)
	posB := e.position(t, 5)

	rejected := e.apply(t, s, posA.ID)
	_, err := e.applications.SetStatus(ctx, reviewer, rejected.ID, models.StatusRejected, "not a fit")
	require.NoError(t, err)

	withdrawn := e.apply(t, s, posB.ID)
	_, err = e.applications.Withdraw(ctx, s, withdrawn.ID)
	require.NoError(t, err)

	for _, id := range []string{rejected.ID, withdrawn.ID} {
		for _, next := range []models.ApplicationStatus{models.StatusPending, models.StatusUnderReview, models.StatusApproved, models.StatusWithdrawn} {
			_, err := e.applications.SetStatus(ctx, reviewer, id, next, "")
			assert.ErrorIs(t, err, errors.ErrIllegalTransition, "%s -> %s", id, next)
		}
		_, err := e.applications.Withdraw(ctx, s, id)
		assert.ErrorIs(t, err, errors.ErrIllegalTransition)
	}

	_, err = e.applications.SetStatus(ctx, reviewer, withdrawn.ID, models.StatusRejected, "")
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)

	// Re-rejecting is an idempotent no-op
	again, err := e.applications.SetStatus(ctx, reviewer, rejected.ID, models.StatusRejected, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, again.Status)
}

func TestApplicationService_ConcurrentApprovalsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleHostSupervisor, "host@org.com")

	const capacity = 3
	const applicants = 12
	pos := e.position(t, capacity)

	apps := make([]*models.Application, applicants)
	for i := range apps {
		s := e.register(t, models.RoleStudent, fmt.Sprintf("s%d@uni.edu", i))
		apps[i] = e.apply(t, s, pos.ID)
	}

	var wg sync.WaitGroup
	results := make([]error, applicants)
	for i, app := range apps {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = e.applications.SetStatus(ctx, reviewer, id, models.StatusApproved, "")
		}(i, app.ID)
	}
	wg.Wait()

	succeeded, noCapacity := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, errors.ErrNoCapacity):
			noCapacity++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, applicants-capacity, noCapacity)

	p, err := e.ledger.GetPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, p.Reserved)
	assert.LessOrEqual(t, p.Reserved, p.Capacity)
}

func TestApplicationService_ConcurrentCreateSingleLive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	pos := e.position(t, 1)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.applications.Create(ctx, s, s.ID, pos.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, errors.ErrDuplicateLiveApplication)
	}
	assert.Equal(t, 1, ok)
}

func TestApplicationService_SecondActivationIsCompensated(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleSchoolSupervisor, "sup@uni.edu")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	posA := e.position(t, 2)
	posB := e.position(t, 2)

	appA := e.apply(t, s, posA.ID)
	appB := e.apply(t, s, posB.ID)
	_, err := e.applications.SetStatus(ctx, reviewer, appB.ID, models.StatusUnderReview, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = e.applications.SetStatus(ctx, reviewer, appA.ID, models.StatusApproved, "")
	}()
	go func() {
		defer wg.Done()
		_, errB = e.applications.SetStatus(ctx, reviewer, appB.ID, models.StatusApproved, "")
	}()
	wg.Wait()

	require.True(t, (errA == nil) != (errB == nil), "exactly one approval must succeed: a=%v b=%v", errA, errB)

	loser, loserPos, loserPrev := appB, posB, models.StatusUnderReview
	if errA != nil {
		assert.ErrorIs(t, errA, errors.ErrActiveAttachmentExists)
		loser, loserPos, loserPrev = appA, posA, models.StatusPending
	} else {
		assert.ErrorIs(t, errB, errors.ErrActiveAttachmentExists)
	}

	reverted, err := e.applications.Get(ctx, reviewer, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, loserPrev, reverted.Status)

	slots, err := e.ledger.AvailableSlots(ctx, loserPos.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, slots)

	list, err := e.attachments.ListForStudent(ctx, s, s.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestApplicationService_ConcurrentReviewersSingleWinner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	r1 := e.register(t, models.RoleSchoolSupervisor, "r1@uni.edu")
	r2 := e.register(t, models.RoleHostSupervisor, "r2@org.com")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	pos := e.position(t, 3)
	app := e.apply(t, s, pos.ID)

	var wg sync.WaitGroup
	var errApprove, errReject error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errApprove = e.applications.SetStatus(ctx, r1, app.ID, models.StatusApproved, "")
	}()
	go func() {
		defer wg.Done()
		_, errReject = e.applications.SetStatus(ctx, r2, app.ID, models.StatusRejected, "")
	}()
	wg.Wait()

	final, err := e.applications.Get(ctx, r1, app.ID)
	require.NoError(t, err)

	p, err := e.ledger.GetPosition(ctx, pos.ID)
	require.NoError(t, err)

	switch final.Status {
	case models.StatusApproved:
		assert.NoError(t, errApprove)
		assert.ErrorIs(t, errReject, errors.ErrIllegalTransition)
		assert.Equal(t, 1, p.Reserved)
	case models.StatusRejected:
		assert.NoError(t, errReject)
		assert.ErrorIs(t, errApprove, errors.ErrIllegalTransition)
		assert.Equal(t, 0, p.Reserved)
	default:
		t.Fatalf("unexpected final status %s", final.Status)
	}
}

func TestApplicationService_Permissions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s1 := e.register(t, models.RoleStudent, "s1@uni.edu")
	s2 := e.register(t, models.RoleStudent, "s2@uni.edu")
	host := e.register(t, models.RoleHostSupervisor, "host@org.com")
	pos := e.position(t, 1)

	_, err := e.applications.Create(ctx, s1, s2.ID, pos.ID)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = e.applications.Create(ctx, host, s1.ID, pos.ID)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	onBehalf, err := e.applications.Create(ctx, e.admin, s1.ID, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, onBehalf.StudentID)

	_, err = e.applications.Create(ctx, e.admin, host.ID, pos.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = e.applications.SetStatus(ctx, s1, onBehalf.ID, models.StatusApproved, "")
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = e.applications.Withdraw(ctx, s2, onBehalf.ID)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = e.applications.Get(ctx, s2, onBehalf.ID)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = e.applications.ListForPosition(ctx, s1, pos.ID)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	list, err := e.applications.ListForPosition(ctx, host, pos.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestApplicationService_CreateValidatesPosition(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	pos := e.position(t, 1)

	_, err := e.applications.Create(ctx, s, s.ID, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = e.ledger.SetActive(ctx, e.admin, pos.ID, false)
	require.NoError(t, err)

	_, err = e.applications.Create(ctx, s, s.ID, pos.ID)
	assert.ErrorIs(t, err, errors.ErrPositionInactive)
}

func TestApplicationService_RevokeReleasesSlot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleSchoolSupervisor, "sup@uni.edu")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	pos := e.position(t, 1)
	app := e.apply(t, s, pos.ID)

	_, err := e.applications.SetStatus(ctx, reviewer, app.ID, models.StatusApproved, "")
	require.NoError(t, err)

	// Reviewers cannot un-approve
	_, err = e.applications.SetStatus(ctx, reviewer, app.ID, models.StatusRejected, "")
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)

	_, err = e.applications.Revoke(ctx, reviewer, app.ID, "no")
	assert.ErrorIs(t, err, errors.ErrForbidden)

	revoked, err := e.applications.Revoke(ctx, e.admin, app.ID, "placement cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, revoked.Status)

	slots, err := e.ledger.AvailableSlots(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, slots)

	_, err = e.attachments.ActiveForStudent(ctx, s, s.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = e.applications.Revoke(ctx, e.admin, app.ID, "")
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)
}

// failingEndStore fails the next n End calls with a transient error
type failingEndStore struct {
	repository.AttachmentStore
	failures atomic.Int32
}

func (s *failingEndStore) End(ctx context.Context, id string, status models.AttachmentStatus, reason *string, at time.Time) (*models.Attachment, error) {
	if s.failures.Add(-1) >= 0 {
		return nil, stderrors.New("connection reset")
	}
	return s.AttachmentStore.End(ctx, id, status, reason, at)
}

func TestApplicationService_RevokeIsRetryableAfterAttachmentFailure(t *testing.T) {
	ctx := context.Background()
	flaky := &failingEndStore{}
	e := newEnvWith(t, newEnvOptions{
		wrapAttachments: func(inner repository.AttachmentStore) repository.AttachmentStore {
			flaky.AttachmentStore = inner
			return flaky
		},
	})
	reviewer := e.register(t, models.RoleSchoolSupervisor, "sup@uni.edu")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	pos := e.position(t, 1)
	app := e.apply(t, s, pos.ID)

	_, err := e.applications.SetStatus(ctx, reviewer, app.ID, models.StatusApproved, "")
	require.NoError(t, err)

	flaky.failures.Store(1)
	_, err = e.applications.Revoke(ctx, e.admin, app.ID, "placement cancelled")
	require.Error(t, err)
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))

	// Nothing moved: still approved, attachment active, slot held
	current, err := e.applications.Get(ctx, e.admin, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, current.Status)

	_, err = e.attachments.ActiveForStudent(ctx, s, s.ID)
	require.NoError(t, err)

	slots, err := e.ledger.AvailableSlots(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, slots)

	revoked, err := e.applications.Revoke(ctx, e.admin, app.ID, "placement cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, revoked.Status)

	_, err = e.attachments.ActiveForStudent(ctx, s, s.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	slots, err = e.ledger.AvailableSlots(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, slots)
}

func TestApplicationService_FailedApprovalRestoresReviewFields(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleHostSupervisor, "host@uni.edu")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	first := e.apply(t, s, e.position(t, 1).ID)
	second := e.apply(t, s, e.position(t, 1).ID)

	_, err := e.applications.SetStatus(ctx, reviewer, first.ID, models.StatusApproved, "")
	require.NoError(t, err)

	_, err = e.applications.SetStatus(ctx, reviewer, second.ID, models.StatusApproved, "looks great")
	require.ErrorIs(t, err, errors.ErrActiveAttachmentExists)

	current, err := e.applications.Get(ctx, reviewer, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
	assert.Nil(t, current.ReviewedBy)
	assert.Nil(t, current.ReviewedAt)
	assert.Nil(t, current.ReviewNotes)
}

func TestApplicationService_FailedApprovalKeepsEarlierReview(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	reviewer := e.register(t, models.RoleSchoolSupervisor, "sup@uni.edu")
	other := e.register(t, models.RoleHostSupervisor, "host@uni.edu")
	s := e.register(t, models.RoleStudent, "s@uni.edu")
	first := e.apply(t, s, e.position(t, 1).ID)
	second := e.apply(t, s, e.position(t, 1).ID)

	reviewed, err := e.applications.SetStatus(ctx, reviewer, second.ID, models.StatusUnderReview, "shortlisted")
	require.NoError(t, err)

	_, err = e.applications.SetStatus(ctx, reviewer, first.ID, models.StatusApproved, "")
	require.NoError(t, err)

	_, err = e.applications.SetStatus(ctx, other, second.ID, models.StatusApproved, "approve anyway")
	require.ErrorIs(t, err, errors.ErrActiveAttachmentExists)

	current, err := e.applications.Get(ctx, reviewer, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, current.Status)
	require.NotNil(t, current.ReviewedBy)
	assert.Equal(t, reviewer.ID, *current.ReviewedBy)
	require.NotNil(t, current.ReviewedAt)
	assert.True(t, reviewed.ReviewedAt.Equal(*current.ReviewedAt))
	require.NotNil(t, current.ReviewNotes)
	assert.Equal(t, "shortlisted", *current.ReviewNotes)
}
