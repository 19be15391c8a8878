package services

import (
	"context"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/jwt"
)

// CredentialServiceInterface defines principal and secret management
type CredentialServiceInterface interface {
	Register(ctx context.Context, role models.Role, email, secret, fullName string) (*models.Principal, error)
	Verify(ctx context.Context, role models.Role, email, secret string) (*models.Principal, error)
	SetSecret(ctx context.Context, principalID, newSecret string) error
	ChangeSecret(ctx context.Context, principalID, currentSecret, newSecret string) error
	Get(ctx context.Context, principalID string) (*models.Principal, error)
	Deactivate(ctx context.Context, actor *models.Principal, principalID string) (*models.Principal, error)
}

// AuthServiceInterface defines the session token flow
type AuthServiceInterface interface {
	Login(ctx context.Context, role, email, secret string) (*jwt.TokenPair, *models.Principal, error)
	Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error)
	Logout(ctx context.Context, claims *jwt.Claims) error
}

// GuardInterface authenticates requests and checks role allow-lists
type GuardInterface interface {
	Authenticate(ctx context.Context, rawToken string) (*models.Principal, *jwt.Claims, error)
	Authorize(p *models.Principal, allowed models.RoleSet) error
}

// LedgerServiceInterface defines position and capacity management
type LedgerServiceInterface interface {
	CreatePosition(ctx context.Context, actor *models.Principal, organizationID, title string, capacity int) (*models.Position, error)
	GetPosition(ctx context.Context, positionID string) (*models.Position, error)
	AvailableSlots(ctx context.Context, positionID string) (int, error)
	UpdateCapacity(ctx context.Context, actor *models.Principal, positionID string, capacity int) (*models.Position, error)
	SetActive(ctx context.Context, actor *models.Principal, positionID string, active bool) (*models.Position, error)
}

// ApplicationServiceInterface defines the application lifecycle
type ApplicationServiceInterface interface {
	Create(ctx context.Context, caller *models.Principal, studentID, positionID string) (*models.Application, error)
	SetStatus(ctx context.Context, reviewer *models.Principal, applicationID string, next models.ApplicationStatus, notes string) (*models.Application, error)
	Withdraw(ctx context.Context, student *models.Principal, applicationID string) (*models.Application, error)
	Revoke(ctx context.Context, admin *models.Principal, applicationID, notes string) (*models.Application, error)
	Get(ctx context.Context, caller *models.Principal, applicationID string) (*models.Application, error)
	ListForStudent(ctx context.Context, caller *models.Principal, studentID string) ([]*models.Application, error)
	ListForPosition(ctx context.Context, caller *models.Principal, positionID string) ([]*models.Application, error)
}

// AttachmentServiceInterface defines attachment queries and termination
type AttachmentServiceInterface interface {
	Get(ctx context.Context, caller *models.Principal, attachmentID string) (*models.Attachment, error)
	ActiveForStudent(ctx context.Context, caller *models.Principal, studentID string) (*models.Attachment, error)
	ListForStudent(ctx context.Context, caller *models.Principal, studentID string) ([]*models.Attachment, error)
	Terminate(ctx context.Context, actor *models.Principal, attachmentID string, status models.AttachmentStatus, reason string) (*models.Attachment, error)
}

var (
	_ CredentialServiceInterface  = (*CredentialService)(nil)
	_ AuthServiceInterface        = (*AuthService)(nil)
	_ GuardInterface              = (*Guard)(nil)
	_ LedgerServiceInterface      = (*LedgerService)(nil)
	_ ApplicationServiceInterface = (*ApplicationService)(nil)
	_ AttachmentServiceInterface  = (*AttachmentService)(nil)
)
