package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/jackc/pgx/v5"
)

const (
	attachmentColumns = `id, application_id, student_id, organization_id, position_id, status, started_at, ended_at, end_reason`
	oneActiveIdx      = "attachments_one_active_per_student"
)

// AttachmentStore persists attachments. At most one active attachment per
// student is enforced by the attachments_one_active_per_student partial index.
type AttachmentStore struct {
	c *Client
}

func scanAttachment(row pgx.Row) (*models.Attachment, error) {
	var a models.Attachment
	var status string
	if err := row.Scan(&a.ID, &a.ApplicationID, &a.StudentID, &a.OrganizationID, &a.PositionID,
		&status, &a.StartedAt, &a.EndedAt, &a.EndReason); err != nil {
		return nil, err
	}
	a.Status = models.AttachmentStatus(status)
	return &a, nil
}

func (s *AttachmentStore) CreateActive(ctx context.Context, a *models.Attachment) (err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("attachments", "createActive", start, err, errors.IsBusiness(err)) }()

	_, err = s.c.pool.Exec(ctx, `
		INSERT INTO attachments (id, application_id, student_id, organization_id, position_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ApplicationID, a.StudentID, a.OrganizationID, a.PositionID, string(models.AttachmentActive), a.StartedAt)
	if isUniqueViolation(err, oneActiveIdx) {
		return errors.ErrActiveAttachmentExists
	}
	if isUniqueViolation(err, "") {
		return errors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (s *AttachmentStore) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	return s.getOne(ctx, "getByID", `id = $1`, id, "attachment")
}

func (s *AttachmentStore) GetByApplication(ctx context.Context, applicationID string) (*models.Attachment, error) {
	return s.getOne(ctx, "getByApplication", `application_id = $1 ORDER BY started_at DESC LIMIT 1`, applicationID, "attachment")
}

func (s *AttachmentStore) GetActiveByStudent(ctx context.Context, studentID string) (*models.Attachment, error) {
	return s.getOne(ctx, "getActiveByStudent", `student_id = $1 AND status = 'active'`, studentID, "active attachment")
}

func (s *AttachmentStore) getOne(ctx context.Context, operation, where, arg, resource string) (a *models.Attachment, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("attachments", operation, start, err, errors.IsBusiness(err)) }()

	a, err = scanAttachment(s.c.pool.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE `+where, arg))
	if isNoRows(err) {
		return nil, errors.NotFoundError(resource)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}

func (s *AttachmentStore) ListByStudent(ctx context.Context, studentID string) (out []*models.Attachment, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("attachments", "listByStudent", start, err, false) }()

	rows, err := s.c.pool.Query(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE student_id = $1 ORDER BY started_at ASC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	out = make([]*models.Attachment, 0)
	for rows.Next() {
		a, scanErr := scanAttachment(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", scanErr)
		}
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return out, nil
}

// End moves an active attachment to status; anything else is a lost race
func (s *AttachmentStore) End(ctx context.Context, id string, status models.AttachmentStatus, reason *string, at time.Time) (a *models.Attachment, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("attachments", "end", start, err, errors.IsBusiness(err)) }()

	a, err = scanAttachment(s.c.pool.QueryRow(ctx, `
		UPDATE attachments
		SET status = $2, ended_at = $3, end_reason = $4
		WHERE id = $1 AND status = 'active'
		RETURNING `+attachmentColumns, id, string(status), at, reason))
	if err == nil {
		return a, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to end attachment: %w", err)
	}

	var found bool
	if getErr := s.c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attachments WHERE id = $1)`, id).Scan(&found); getErr != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", getErr)
	}
	if !found {
		return nil, errors.NotFoundError("attachment")
	}
	return nil, errors.ErrConflict
}
