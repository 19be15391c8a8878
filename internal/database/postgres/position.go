package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/jackc/pgx/v5"
)

const positionColumns = `id, organization_id, title, capacity, reserved, active, created_at, updated_at`

// PositionStore persists positions. Reserve and release are single conditional
// UPDATE statements, so row-level locking serializes them per position.
type PositionStore struct {
	c *Client
}

func scanPosition(row pgx.Row) (*models.Position, error) {
	var p models.Position
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.Title, &p.Capacity, &p.Reserved, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PositionStore) Create(ctx context.Context, p *models.Position) (err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("positions", "create", start, err, errors.IsBusiness(err)) }()

	_, err = s.c.pool.Exec(ctx, `
		INSERT INTO positions (id, organization_id, title, capacity, reserved, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.OrganizationID, p.Title, p.Capacity, p.Reserved, p.Active, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err, "") {
		return errors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	return nil
}

func (s *PositionStore) GetByID(ctx context.Context, id string) (p *models.Position, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("positions", "getByID", start, err, errors.IsBusiness(err)) }()

	return s.get(ctx, id)
}

func (s *PositionStore) get(ctx context.Context, id string) (*models.Position, error) {
	p, err := scanPosition(s.c.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, errors.NotFoundError("position")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

func (s *PositionStore) TryReserve(ctx context.Context, id string, at time.Time) (p *models.Position, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("positions", "tryReserve", start, err, errors.IsBusiness(err)) }()

	p, err = scanPosition(s.c.pool.QueryRow(ctx, `
		UPDATE positions
		SET reserved = reserved + 1, updated_at = $2
		WHERE id = $1 AND active AND reserved < capacity
		RETURNING `+positionColumns, id, at))
	if err == nil {
		return p, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}

	// The condition failed; classify why from a fresh read
	current, getErr := s.get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if !current.Active {
		return nil, errors.ErrPositionInactive
	}
	return nil, errors.ErrNoCapacity
}

func (s *PositionStore) Release(ctx context.Context, id string, at time.Time) (p *models.Position, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("positions", "release", start, err, errors.IsBusiness(err)) }()

	p, err = scanPosition(s.c.pool.QueryRow(ctx, `
		UPDATE positions
		SET reserved = reserved - 1, updated_at = $2
		WHERE id = $1 AND reserved > 0
		RETURNING `+positionColumns, id, at))
	if err == nil {
		return p, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to release slot: %w", err)
	}
	if _, getErr := s.get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, errors.ErrConflict
}

func (s *PositionStore) UpdateCapacity(ctx context.Context, id string, capacity int, at time.Time) (p *models.Position, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("positions", "updateCapacity", start, err, errors.IsBusiness(err)) }()

	p, err = scanPosition(s.c.pool.QueryRow(ctx, `
		UPDATE positions
		SET capacity = $2, updated_at = $3
		WHERE id = $1 AND reserved <= $2
		RETURNING `+positionColumns, id, capacity, at))
	if err == nil {
		return p, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to update capacity: %w", err)
	}
	if _, getErr := s.get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, errors.ErrCapacityBelowReserved
}

func (s *PositionStore) SetActive(ctx context.Context, id string, active bool, at time.Time) (p *models.Position, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("positions", "setActive", start, err, errors.IsBusiness(err)) }()

	p, err = scanPosition(s.c.pool.QueryRow(ctx,
		`UPDATE positions SET active = $2, updated_at = $3 WHERE id = $1 RETURNING `+positionColumns, id, active, at))
	if isNoRows(err) {
		return nil, errors.NotFoundError("position")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set position active: %w", err)
	}
	return p, nil
}
