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
	applicationColumns = `id, student_id, position_id, status, applied_at, reviewed_by, reviewed_at, review_notes, updated_at`
	liveApplicationIdx = "applications_live_unique"
)

// ApplicationStore persists applications. Live uniqueness per (student, position)
// is enforced by the applications_live_unique partial index.
type ApplicationStore struct {
	c *Client
}

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	var status string
	if err := row.Scan(&a.ID, &a.StudentID, &a.PositionID, &status, &a.AppliedAt,
		&a.ReviewedBy, &a.ReviewedAt, &a.ReviewNotes, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = models.ApplicationStatus(status)
	return &a, nil
}

func (s *ApplicationStore) CreateLive(ctx context.Context, a *models.Application) (err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("applications", "createLive", start, err, errors.IsBusiness(err)) }()

	_, err = s.c.pool.Exec(ctx, `
		INSERT INTO applications (id, student_id, position_id, status, applied_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.StudentID, a.PositionID, string(a.Status), a.AppliedAt, a.UpdatedAt)
	if isUniqueViolation(err, liveApplicationIdx) {
		return errors.ErrDuplicateLiveApplication
	}
	if isUniqueViolation(err, "") {
		return errors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (s *ApplicationStore) GetByID(ctx context.Context, id string) (a *models.Application, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("applications", "getByID", start, err, errors.IsBusiness(err)) }()

	return s.get(ctx, id)
}

func (s *ApplicationStore) get(ctx context.Context, id string) (*models.Application, error) {
	a, err := scanApplication(s.c.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, errors.NotFoundError("application")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return a, nil
}

// CompareAndSetStatus updates the row only while its status still equals change.From
func (s *ApplicationStore) CompareAndSetStatus(ctx context.Context, change models.StatusChange) (a *models.Application, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("applications", "compareAndSetStatus", start, err, errors.IsBusiness(err)) }()

	reviewerID, notes := change.ReviewerID, change.Notes
	var reviewedAt *time.Time
	restore := change.Restore != nil
	if restore {
		reviewerID, reviewedAt, notes = change.Restore.ReviewedBy, change.Restore.ReviewedAt, change.Restore.ReviewNotes
	}

	a, err = scanApplication(s.c.pool.QueryRow(ctx, `
		UPDATE applications
		SET status = $3,
		    updated_at = $4,
		    reviewed_by = CASE WHEN $7::boolean THEN $5::text ELSE COALESCE($5::text, reviewed_by) END,
		    reviewed_at = CASE
		        WHEN $7::boolean THEN $8::timestamptz
		        WHEN $5::text IS NULL THEN reviewed_at
		        ELSE $4 END,
		    review_notes = CASE WHEN $7::boolean THEN $6::text ELSE COALESCE($6::text, review_notes) END
		WHERE id = $1 AND status = $2
		RETURNING `+applicationColumns,
		change.ApplicationID, string(change.From), string(change.To), change.At, reviewerID, notes, restore, reviewedAt))
	if err == nil {
		return a, nil
	}
	if isUniqueViolation(err, liveApplicationIdx) {
		return nil, errors.ErrDuplicateLiveApplication
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}
	if _, getErr := s.get(ctx, change.ApplicationID); getErr != nil {
		return nil, getErr
	}
	return nil, errors.ErrConflict
}

func (s *ApplicationStore) ListByStudent(ctx context.Context, studentID string) ([]*models.Application, error) {
	return s.list(ctx, "listByStudent", `student_id = $1`, studentID)
}

func (s *ApplicationStore) ListByPosition(ctx context.Context, positionID string) ([]*models.Application, error) {
	return s.list(ctx, "listByPosition", `position_id = $1`, positionID)
}

func (s *ApplicationStore) list(ctx context.Context, operation, where, arg string) (out []*models.Application, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("applications", operation, start, err, false) }()

	rows, err := s.c.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE `+where+` ORDER BY applied_at ASC, id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	out = make([]*models.Application, 0)
	for rows.Next() {
		a, scanErr := scanApplication(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan application: %w", scanErr)
		}
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return out, nil
}
