package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/jackc/pgx/v5"
)

const principalColumns = `id, role, email, full_name, secret_hash, active, created_at, updated_at`

// PrincipalStore persists principals in the principals table
type PrincipalStore struct {
	c *Client
}

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	var role string
	if err := row.Scan(&p.ID, &role, &p.Email, &p.FullName, &p.SecretHash, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	return &p, nil
}

// Create inserts p. Role-scoped uniqueness comes from principals_role_email_unique;
// global scope additionally serializes inserts per email with an advisory lock.
func (s *PrincipalStore) Create(ctx context.Context, p *models.Principal, scope models.EmailScope) (err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("principals", "create", start, err, errors.IsBusiness(err)) }()

	insert := `
		INSERT INTO principals (id, role, email, full_name, secret_hash, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	args := []any{p.ID, string(p.Role), p.Email, p.FullName, p.SecretHash, p.Active, p.CreatedAt, p.UpdatedAt}

	if scope == models.EmailScopeGlobal {
		err = pgx.BeginFunc(ctx, s.c.pool, func(tx pgx.Tx) error {
			if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.Email); lockErr != nil {
				return lockErr
			}
			var taken bool
			if scanErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM principals WHERE email = $1)`, p.Email).Scan(&taken); scanErr != nil {
				return scanErr
			}
			if taken {
				return errors.ErrDuplicateEmail
			}
			_, execErr := tx.Exec(ctx, insert, args...)
			return execErr
		})
	} else {
		_, err = s.c.pool.Exec(ctx, insert, args...)
	}

	if isUniqueViolation(err, "principals_role_email_unique") {
		return errors.ErrDuplicateEmail
	}
	if err != nil && !errors.IsBusiness(err) {
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return err
}

func (s *PrincipalStore) GetByID(ctx context.Context, id string) (p *models.Principal, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("principals", "getByID", start, err, errors.IsBusiness(err)) }()

	p, err = scanPrincipal(s.c.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, errors.NotFoundError("principal")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) GetByEmail(ctx context.Context, role models.Role, email string) (p *models.Principal, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("principals", "getByEmail", start, err, errors.IsBusiness(err)) }()

	p, err = scanPrincipal(s.c.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE role = $1 AND email = $2`, string(role), email))
	if isNoRows(err) {
		return nil, errors.NotFoundError("principal")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal by email: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) UpdateSecretHash(ctx context.Context, id, secretHash string, at time.Time) (err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("principals", "updateSecretHash", start, err, errors.IsBusiness(err)) }()

	tag, err := s.c.pool.Exec(ctx, `UPDATE principals SET secret_hash = $2, updated_at = $3 WHERE id = $1`, id, secretHash, at)
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("principal")
	}
	return nil
}

func (s *PrincipalStore) SetActive(ctx context.Context, id string, active bool, at time.Time) (p *models.Principal, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("principals", "setActive", start, err, errors.IsBusiness(err)) }()

	p, err = scanPrincipal(s.c.pool.QueryRow(ctx,
		`UPDATE principals SET active = $2, updated_at = $3 WHERE id = $1 RETURNING `+principalColumns, id, active, at))
	if isNoRows(err) {
		return nil, errors.NotFoundError("principal")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set principal active: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) CountByRole(ctx context.Context, role models.Role) (n int, err error) {
	start := time.Now()
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()
	defer func() { observe("principals", "countByRole", start, err, false) }()

	if err = s.c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM principals WHERE role = $1`, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count principals: %w", err)
	}
	return n, nil
}
