package services

import (
	"context"
	"strings"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/attachtrack/attachtrack-api/pkg/metrics"
	"github.com/attachtrack/attachtrack-api/pkg/retry"
	"github.com/attachtrack/attachtrack-api/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var applicantRoles = models.NewRoleSet(models.RoleStudent, models.RoleAdministrator)

// ApplicationService runs the application state machine.
//
// Approval touches three stores without a shared transaction:
//  1. reserve a slot on the position
//  2. compare-and-set the application to approved
//  3. create the active attachment
//
// A failure at step n undoes steps n-1..1 in reverse order on a context
// detached from the caller, so a dropped request cannot strand a reservation.
type ApplicationService struct {
	applications repository.ApplicationStore
	credentials  *CredentialService
	ledger       *LedgerService
	attachments  *AttachmentService
	retryConfig  retry.Config
	now          func() time.Time
}

// NewApplicationService creates a new ApplicationService
func NewApplicationService(
	applications repository.ApplicationStore,
	credentials *CredentialService,
	ledger *LedgerService,
	attachments *AttachmentService,
) *ApplicationService {
	return &ApplicationService{
		applications: applications,
		credentials:  credentials,
		ledger:       ledger,
		attachments:  attachments,
		retryConfig:  retry.CompensationConfig(),
		now:          time.Now,
	}
}

// Create files a pending application. Students apply for themselves;
// administrators may apply on a student's behalf.
func (s *ApplicationService) Create(ctx context.Context, caller *models.Principal, studentID, positionID string) (*models.Application, error) {
	if err := Authorize(caller, applicantRoles); err != nil {
		return nil, err
	}
	if caller.Role == models.RoleStudent && caller.ID != studentID {
		return nil, errors.ForbiddenError("students can only apply for themselves")
	}
	if caller.Role == models.RoleAdministrator {
		student, err := s.credentials.Get(ctx, studentID)
		if err != nil {
			return nil, err
		}
		if student.Role != models.RoleStudent || !student.Active {
			return nil, errors.InvalidInputError("studentId", "must reference an active student")
		}
	}

	pos, err := s.ledger.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if !pos.Active {
		return nil, errors.ErrPositionInactive
	}

	now := s.now().UTC()
	app := &models.Application{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		PositionID: positionID,
		Status:     models.StatusPending,
		AppliedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.applications.CreateLive(ctx, app); err != nil {
		return nil, storeError(err, "failed to create application")
	}

	logger.Info("Application created",
		zap.String("application_id", app.ID),
		zap.String("student_id", studentID),
		zap.String("position_id", positionID),
		zap.String("actor_id", caller.ID))
	return app, nil
}

// SetStatus applies a reviewer decision
func (s *ApplicationService) SetStatus(ctx context.Context, reviewer *models.Principal, applicationID string, next models.ApplicationStatus, notes string) (*models.Application, error) {
	if err := Authorize(reviewer, models.ReviewerRoles); err != nil {
		return nil, err
	}
	if !next.IsValid() {
		return nil, errors.InvalidInputError("status", "unknown status")
	}

	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if app.Status == models.StatusRejected && next == models.StatusRejected {
		return app, nil
	}
	if !app.Status.CanReviewerTransitionTo(next) {
		metrics.ApplicationTransitions.WithLabelValues(string(app.Status), string(next), "illegal").Inc()
		return nil, errors.TransitionError(string(app.Status), string(next))
	}

	if next == models.StatusApproved {
		return s.approve(ctx, reviewer, app, notes)
	}

	updated, err := s.applications.CompareAndSetStatus(ctx, s.change(app, next, &reviewer.ID, notes))
	if err != nil {
		return s.lostRace(ctx, app, next, err)
	}

	s.recordTransition(app.Status, next, reviewer.ID, updated.ID)
	return updated, nil
}

// approve runs reserve, CAS and activate, compensating on failure
func (s *ApplicationService) approve(ctx context.Context, reviewer *models.Principal, app *models.Application, notes string) (*models.Application, error) {
	ctx, span := tracing.StartSpan(ctx, "application.approve")
	defer span.End()
	span.SetAttributes(
		attribute.String("application.id", app.ID),
		attribute.String("position.id", app.PositionID),
	)

	if _, err := s.ledger.TryReserve(ctx, app.PositionID); err != nil {
		metrics.ApplicationTransitions.WithLabelValues(string(app.Status), string(models.StatusApproved), string(errors.KindOf(err))).Inc()
		logger.Info("Approval refused by ledger",
			zap.String("application_id", app.ID),
			zap.String("position_id", app.PositionID),
			zap.Error(err))
		return nil, err
	}

	approved, err := s.applications.CompareAndSetStatus(ctx, s.change(app, models.StatusApproved, &reviewer.ID, notes))
	if err != nil {
		s.compensate(ctx, "release_after_cas", func(dctx context.Context) error {
			return s.ledger.Release(dctx, app.PositionID)
		})
		return s.lostRace(ctx, app, models.StatusApproved, err)
	}

	if _, err := s.attachments.Activate(ctx, approved); err != nil {
		s.compensate(ctx, "revert_status", func(dctx context.Context) error {
			review := app.Review()
			_, casErr := s.applications.CompareAndSetStatus(dctx, models.StatusChange{
				ApplicationID: app.ID,
				From:          models.StatusApproved,
				To:            app.Status,
				At:            s.now().UTC(),
				Restore:       &review,
			})
			return casErr
		})
		s.compensate(ctx, "release_after_activate", func(dctx context.Context) error {
			return s.ledger.Release(dctx, app.PositionID)
		})
		metrics.ApplicationTransitions.WithLabelValues(string(app.Status), string(models.StatusApproved), string(errors.KindOf(err))).Inc()
		return nil, err
	}

	s.recordTransition(app.Status, models.StatusApproved, reviewer.ID, app.ID)
	return approved, nil
}

// Withdraw lets the owning student retract an undecided application
func (s *ApplicationService) Withdraw(ctx context.Context, student *models.Principal, applicationID string) (*models.Application, error) {
	if student == nil {
		return nil, errors.ErrUnauthenticated
	}

	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if student.Role != models.RoleStudent || student.ID != app.StudentID {
		return nil, errors.ForbiddenError("only the applicant can withdraw")
	}
	if !app.Status.CanWithdraw() {
		metrics.ApplicationTransitions.WithLabelValues(string(app.Status), string(models.StatusWithdrawn), "illegal").Inc()
		return nil, errors.TransitionError(string(app.Status), string(models.StatusWithdrawn))
	}

	updated, err := s.applications.CompareAndSetStatus(ctx, s.change(app, models.StatusWithdrawn, nil, ""))
	if err != nil {
		return s.lostRace(ctx, app, models.StatusWithdrawn, err)
	}

	s.recordTransition(app.Status, models.StatusWithdrawn, student.ID, updated.ID)
	return updated, nil
}

// Revoke reverses an approval. It is the only path from approved to rejected;
// an active attachment is terminated and its slot returned.
func (s *ApplicationService) Revoke(ctx context.Context, admin *models.Principal, applicationID, notes string) (*models.Application, error) {
	if err := Authorize(admin, adminOnly); err != nil {
		return nil, err
	}

	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusApproved {
		return nil, errors.TransitionError(string(app.Status), string(models.StatusRejected))
	}

	att, err := s.attachments.ForApplication(ctx, app.ID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Approval is still between CAS and activation
			return nil, errors.ErrConflict
		}
		return nil, err
	}

	// The attachment is ended before the status flips, so a failure here leaves
	// the application approved and Revoke can simply be retried
	if att.Status == models.AttachmentActive {
		reason := "approval revoked"
		if n := strings.TrimSpace(notes); n != "" {
			reason += ": " + n
		}
		if _, err := s.attachments.end(ctx, att.ID, models.AttachmentTerminated, reason, admin.ID); err != nil &&
			!errors.Is(err, errors.ErrIllegalTransition) {
			logger.Error("Failed to terminate attachment for revoked approval",
				zap.String("application_id", app.ID),
				zap.String("attachment_id", att.ID),
				zap.Error(err))
			return nil, err
		}
	}

	updated, err := s.applications.CompareAndSetStatus(ctx, s.change(app, models.StatusRejected, &admin.ID, notes))
	if err != nil {
		return s.lostRace(ctx, app, models.StatusRejected, err)
	}

	s.recordTransition(models.StatusApproved, models.StatusRejected, admin.ID, updated.ID)
	return updated, nil
}

// Get returns an application. Students may only see their own.
func (s *ApplicationService) Get(ctx context.Context, caller *models.Principal, applicationID string) (*models.Application, error) {
	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := ensureStudentOwns(caller, app.StudentID); err != nil {
		return nil, err
	}
	return app, nil
}

// ListForStudent returns a student's applications, oldest first
func (s *ApplicationService) ListForStudent(ctx context.Context, caller *models.Principal, studentID string) ([]*models.Application, error) {
	if err := ensureStudentOwns(caller, studentID); err != nil {
		return nil, err
	}
	list, err := s.applications.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "failed to list applications")
	}
	return list, nil
}

// ListForPosition returns a position's applications. Students cannot list positions.
func (s *ApplicationService) ListForPosition(ctx context.Context, caller *models.Principal, positionID string) ([]*models.Application, error) {
	if err := Authorize(caller, models.ReviewerRoles); err != nil {
		return nil, err
	}
	list, err := s.applications.ListByPosition(ctx, positionID)
	if err != nil {
		return nil, storeError(err, "failed to list applications")
	}
	return list, nil
}

func (s *ApplicationService) load(ctx context.Context, applicationID string) (*models.Application, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, storeError(err, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) change(app *models.Application, next models.ApplicationStatus, actorID *string, notes string) models.StatusChange {
	c := models.StatusChange{
		ApplicationID: app.ID,
		From:          app.Status,
		To:            next,
		ReviewerID:    actorID,
		At:            s.now().UTC(),
	}
	if n := strings.TrimSpace(notes); n != "" {
		c.Notes = &n
	}
	return c
}

// lostRace turns a failed compare-and-set into the outcome the caller would
// have seen had it arrived after the winning writer
func (s *ApplicationService) lostRace(ctx context.Context, app *models.Application, next models.ApplicationStatus, casErr error) (*models.Application, error) {
	if !errors.Is(casErr, errors.ErrConflict) {
		return nil, storeError(casErr, "failed to update application status")
	}

	current, err := s.load(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusRejected && next == models.StatusRejected {
		return current, nil
	}

	metrics.ApplicationTransitions.WithLabelValues(string(app.Status), string(next), "conflict").Inc()
	logger.Info("Concurrent status change detected",
		zap.String("application_id", app.ID),
		zap.String("expected", string(app.Status)),
		zap.String("actual", string(current.Status)),
		zap.String("requested", string(next)))
	return nil, errors.TransitionError(string(current.Status), string(next))
}

// compensate runs an undo step detached from caller cancellation, with retry
func (s *ApplicationService) compensate(ctx context.Context, step string, fn func(context.Context) error) {
	dctx := context.WithoutCancel(ctx)
	err := retry.Do(dctx, s.retryConfig, "compensate_"+step, func() error {
		return fn(dctx)
	})
	if err != nil {
		metrics.Compensations.WithLabelValues(step, "failure").Inc()
		logger.Error("Compensation failed",
			zap.String("step", step),
			zap.Error(err))
		return
	}
	metrics.Compensations.WithLabelValues(step, "success").Inc()
}

func (s *ApplicationService) recordTransition(from, to models.ApplicationStatus, actorID, applicationID string) {
	metrics.ApplicationTransitions.WithLabelValues(string(from), string(to), "success").Inc()
	logger.Info("Application status changed",
		zap.String("application_id", applicationID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actorID))
}
