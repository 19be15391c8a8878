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
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttachmentService turns approved applications into attachments and ends them
type AttachmentService struct {
	attachments repository.AttachmentStore
	ledger      *LedgerService
	retryConfig retry.Config
	now         func() time.Time
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(attachments repository.AttachmentStore, ledger *LedgerService) *AttachmentService {
	return &AttachmentService{
		attachments: attachments,
		ledger:      ledger,
		retryConfig: retry.CompensationConfig(),
		now:         time.Now,
	}
}

// Activate creates the active attachment for an approved application.
// The caller holds the position reservation and undoes it on failure.
func (s *AttachmentService) Activate(ctx context.Context, app *models.Application) (*models.Attachment, error) {
	if app.Status != models.StatusApproved {
		return nil, errors.TransitionError(string(app.Status), "activated")
	}

	pos, err := s.ledger.GetPosition(ctx, app.PositionID)
	if err != nil {
		return nil, err
	}

	att := &models.Attachment{
		ID:             uuid.NewString(),
		ApplicationID:  app.ID,
		StudentID:      app.StudentID,
		OrganizationID: pos.OrganizationID,
		PositionID:     pos.ID,
		Status:         models.AttachmentActive,
		StartedAt:      s.now().UTC(),
	}
	if err := s.attachments.CreateActive(ctx, att); err != nil {
		if errors.Is(err, errors.ErrActiveAttachmentExists) {
			logger.Info("Activation blocked by existing attachment",
				zap.String("student_id", app.StudentID),
				zap.String("application_id", app.ID))
		}
		return nil, storeError(err, "failed to create attachment")
	}

	logger.Info("Attachment activated",
		zap.String("attachment_id", att.ID),
		zap.String("application_id", app.ID),
		zap.String("student_id", app.StudentID),
		zap.String("position_id", pos.ID))
	return att, nil
}

// Terminate ends an active attachment as completed or terminated and returns its slot
func (s *AttachmentService) Terminate(ctx context.Context, actor *models.Principal, attachmentID string, status models.AttachmentStatus, reason string) (*models.Attachment, error) {
	if err := Authorize(actor, models.SupervisorRoles); err != nil {
		return nil, err
	}
	if !status.IsEnded() {
		return nil, errors.InvalidInputError("status", "must be completed or terminated")
	}
	return s.end(ctx, attachmentID, status, reason, actor.ID)
}

func (s *AttachmentService) end(ctx context.Context, attachmentID string, status models.AttachmentStatus, reason, actorID string) (*models.Attachment, error) {
	var reasonPtr *string
	if r := strings.TrimSpace(reason); r != "" {
		reasonPtr = &r
	}

	att, err := s.attachments.End(ctx, attachmentID, status, reasonPtr, s.now().UTC())
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			current, getErr := s.attachments.GetByID(ctx, attachmentID)
			if getErr != nil {
				return nil, storeError(getErr, "failed to load attachment")
			}
			return nil, errors.TransitionError(string(current.Status), string(status))
		}
		return nil, storeError(err, "failed to end attachment")
	}

	s.releaseDetached(ctx, att.PositionID, "attachment_end")

	metrics.AttachmentsEnded.WithLabelValues(string(status)).Inc()
	logger.Info("Attachment ended",
		zap.String("attachment_id", att.ID),
		zap.String("status", string(status)),
		zap.String("actor_id", actorID))
	return att, nil
}

// releaseDetached returns a slot even if the caller's context is cancelled
func (s *AttachmentService) releaseDetached(ctx context.Context, positionID, step string) {
	dctx := context.WithoutCancel(ctx)
	err := retry.Do(dctx, s.retryConfig, "release_"+step, func() error {
		return s.ledger.Release(dctx, positionID)
	})
	if err != nil {
		metrics.Compensations.WithLabelValues(step, "failure").Inc()
		logger.Error("Failed to release reservation",
			zap.String("position_id", positionID),
			zap.String("step", step),
			zap.Error(err))
		return
	}
	metrics.Compensations.WithLabelValues(step, "success").Inc()
}

// Get returns an attachment. Students may only see their own.
func (s *AttachmentService) Get(ctx context.Context, caller *models.Principal, attachmentID string) (*models.Attachment, error) {
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, storeError(err, "failed to load attachment")
	}
	if err := ensureStudentOwns(caller, att.StudentID); err != nil {
		return nil, err
	}
	return att, nil
}

// ForApplication returns the attachment created from an application
func (s *AttachmentService) ForApplication(ctx context.Context, applicationID string) (*models.Attachment, error) {
	att, err := s.attachments.GetByApplication(ctx, applicationID)
	if err != nil {
		return nil, storeError(err, "failed to load attachment")
	}
	return att, nil
}

// ActiveForStudent returns the student's active attachment, if any
func (s *AttachmentService) ActiveForStudent(ctx context.Context, caller *models.Principal, studentID string) (*models.Attachment, error) {
	if err := ensureStudentOwns(caller, studentID); err != nil {
		return nil, err
	}
	att, err := s.attachments.GetActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "failed to load attachment")
	}
	return att, nil
}

// ListForStudent returns every attachment of a student, oldest first
func (s *AttachmentService) ListForStudent(ctx context.Context, caller *models.Principal, studentID string) ([]*models.Attachment, error) {
	if err := ensureStudentOwns(caller, studentID); err != nil {
		return nil, err
	}
	list, err := s.attachments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "failed to list attachments")
	}
	return list, nil
}

// ensureStudentOwns restricts students to their own records; other roles pass
func ensureStudentOwns(caller *models.Principal, studentID string) error {
	if caller == nil {
		return errors.ErrUnauthenticated
	}
	if caller.Role == models.RoleStudent && caller.ID != studentID {
		return errors.ForbiddenError("students can only access their own records")
	}
	return nil
}
