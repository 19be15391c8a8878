package repository

import (
	"context"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
)

// PrincipalStore persists principals.
// Implementations must enforce email uniqueness within the given scope atomically.
type PrincipalStore interface {
	// Create inserts a principal, returning ErrDuplicateEmail on a scope conflict
	Create(ctx context.Context, p *models.Principal, scope models.EmailScope) error

	// GetByID fetches a principal by id
	GetByID(ctx context.Context, id string) (*models.Principal, error)

	// GetByEmail fetches a principal by normalised email within a role
	GetByEmail(ctx context.Context, role models.Role, email string) (*models.Principal, error)

	// UpdateSecretHash replaces the stored secret hash
	UpdateSecretHash(ctx context.Context, id, secretHash string, at time.Time) error

	// SetActive toggles the principal's active flag
	SetActive(ctx context.Context, id string, active bool, at time.Time) (*models.Principal, error)

	// CountByRole returns the number of principals with the given role
	CountByRole(ctx context.Context, role models.Role) (int, error)
}

// PositionStore persists positions and their reservation counter.
// TryReserve and Release are single conditional writes and serialize per position.
type PositionStore interface {
	Create(ctx context.Context, p *models.Position) error
	GetByID(ctx context.Context, id string) (*models.Position, error)

	// TryReserve increments reserved iff the position is active and reserved < capacity.
	// Returns ErrNoCapacity, ErrPositionInactive or ErrNotFound otherwise.
	TryReserve(ctx context.Context, id string, at time.Time) (*models.Position, error)

	// Release decrements reserved iff reserved > 0
	Release(ctx context.Context, id string, at time.Time) (*models.Position, error)

	// UpdateCapacity sets capacity iff capacity >= reserved, else ErrCapacityBelowReserved
	UpdateCapacity(ctx context.Context, id string, capacity int, at time.Time) (*models.Position, error)

	SetActive(ctx context.Context, id string, active bool, at time.Time) (*models.Position, error)
}

// ApplicationStore persists applications. Applications are never deleted.
type ApplicationStore interface {
	// CreateLive inserts a pending application unless the student already holds a
	// live one for the same position, in which case ErrDuplicateLiveApplication
	CreateLive(ctx context.Context, a *models.Application) error

	GetByID(ctx context.Context, id string) (*models.Application, error)

	// CompareAndSetStatus writes change.To iff the stored status equals change.From.
	// A stale From yields ErrConflict.
	CompareAndSetStatus(ctx context.Context, change models.StatusChange) (*models.Application, error)

	ListByStudent(ctx context.Context, studentID string) ([]*models.Application, error)
	ListByPosition(ctx context.Context, positionID string) ([]*models.Application, error)
}

// AttachmentStore persists attachments
type AttachmentStore interface {
	// CreateActive inserts an active attachment unless the student already has one,
	// in which case ErrActiveAttachmentExists
	CreateActive(ctx context.Context, a *models.Attachment) error

	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	GetByApplication(ctx context.Context, applicationID string) (*models.Attachment, error)
	GetActiveByStudent(ctx context.Context, studentID string) (*models.Attachment, error)
	ListByStudent(ctx context.Context, studentID string) ([]*models.Attachment, error)

	// End moves an active attachment to status. A non-active attachment yields ErrConflict.
	End(ctx context.Context, id string, status models.AttachmentStatus, reason *string, at time.Time) (*models.Attachment, error)
}

// Stores groups the four stores behind one backend
type Stores struct {
	Principals   PrincipalStore
	Positions    PositionStore
	Applications ApplicationStore
	Attachments  AttachmentStore
}
