package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/hasher"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const MinSecretLength = 8

// SecretHasher hashes and verifies secrets and can burn equivalent time for unknown accounts
type SecretHasher interface {
	hasher.SecretHasher
	VerifyDummy(ctx context.Context, secret string)
}

// CredentialService stores principals and verifies their secrets
type CredentialService struct {
	store  repository.PrincipalStore
	hasher SecretHasher
	scope  models.EmailScope
	now    func() time.Time
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(store repository.PrincipalStore, h SecretHasher, scope models.EmailScope) *CredentialService {
	if !scope.IsValid() {
		scope = models.EmailScopeRole
	}
	return &CredentialService{
		store:  store,
		hasher: h,
		scope:  scope,
		now:    time.Now,
	}
}

// Register creates a principal of the given role
func (s *CredentialService) Register(ctx context.Context, role models.Role, email, secret, fullName string) (*models.Principal, error) {
	if !role.IsValid() {
		return nil, errors.ErrInvalidRole
	}

	email = models.NormalizeEmail(email)
	if !looksLikeEmail(email) {
		return nil, errors.InvalidInputError("email", "must be a valid email address")
	}
	if len(secret) < MinSecretLength {
		return nil, errors.InvalidInputError("secret", fmt.Sprintf("must be at least %d characters", MinSecretLength))
	}

	hash, err := s.hasher.Hash(ctx, secret)
	if err != nil {
		return nil, errors.InternalError("failed to hash secret", err)
	}

	now := s.now().UTC()
	p := &models.Principal{
		ID:         uuid.NewString(),
		Role:       role,
		Email:      email,
		FullName:   strings.TrimSpace(fullName),
		SecretHash: hash,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, p, s.scope); err != nil {
		if errors.Is(err, errors.ErrDuplicateEmail) {
			logger.Info("Registration rejected for duplicate email",
				zap.String("role", string(role)),
				zap.String("email_scope", string(s.scope)))
			return nil, errors.ErrDuplicateEmail
		}
		return nil, errors.InternalError("failed to store principal", err)
	}

	logger.Info("Principal registered",
		zap.String("principal_id", p.ID),
		zap.String("role", string(role)))

	return p, nil
}

// Verify checks a login attempt. Every failure the caller sees is ErrInvalidCredentials;
// the log records which check failed.
func (s *CredentialService) Verify(ctx context.Context, role models.Role, email, secret string) (*models.Principal, error) {
	email = models.NormalizeEmail(email)

	if !role.IsValid() {
		s.hasher.VerifyDummy(ctx, secret)
		logger.Info("Login failed", zap.String("reason", "unknown_role"))
		return nil, errors.ErrInvalidCredentials
	}

	p, err := s.store.GetByEmail(ctx, role, email)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, errors.InternalError("failed to load principal", err)
		}
		s.hasher.VerifyDummy(ctx, secret)
		logger.Info("Login failed", zap.String("reason", "unknown_email"), zap.String("role", string(role)))
		return nil, errors.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, secret, p.SecretHash)
	if err != nil {
		logger.Error("Stored secret hash is unreadable", zap.String("principal_id", p.ID), zap.Error(err))
		return nil, errors.ErrInvalidCredentials
	}
	if !ok {
		logger.Info("Login failed", zap.String("reason", "wrong_secret"), zap.String("principal_id", p.ID))
		return nil, errors.ErrInvalidCredentials
	}
	if !p.Active {
		logger.Info("Login failed", zap.String("reason", "inactive"), zap.String("principal_id", p.ID))
		return nil, errors.ErrInvalidCredentials
	}

	return p, nil
}

// SetSecret replaces a principal's secret. Issued tokens stay valid until they expire.
func (s *CredentialService) SetSecret(ctx context.Context, principalID, newSecret string) error {
	if len(newSecret) < MinSecretLength {
		return errors.InvalidInputError("secret", fmt.Sprintf("must be at least %d characters", MinSecretLength))
	}

	hash, err := s.hasher.Hash(ctx, newSecret)
	if err != nil {
		return errors.InternalError("failed to hash secret", err)
	}

	if err := s.store.UpdateSecretHash(ctx, principalID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return err
		}
		return errors.InternalError("failed to update secret", err)
	}

	logger.Info("Secret updated", zap.String("principal_id", principalID))
	return nil
}

// ChangeSecret is the self-service variant of SetSecret and requires the current secret
func (s *CredentialService) ChangeSecret(ctx context.Context, principalID, currentSecret, newSecret string) error {
	p, err := s.Get(ctx, principalID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, currentSecret, p.SecretHash)
	if err != nil || !ok {
		logger.Info("Secret change rejected", zap.String("principal_id", principalID))
		return errors.ErrInvalidCredentials
	}

	return s.SetSecret(ctx, principalID, newSecret)
}

// Get fetches a principal by id
func (s *CredentialService) Get(ctx context.Context, principalID string) (*models.Principal, error) {
	p, err := s.store.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.InternalError("failed to load principal", err)
	}
	return p, nil
}

// Deactivate soft-deletes a principal. Administrators cannot deactivate themselves.
func (s *CredentialService) Deactivate(ctx context.Context, actor *models.Principal, principalID string) (*models.Principal, error) {
	if actor.Role != models.RoleAdministrator {
		return nil, errors.ForbiddenError("only administrators can deactivate principals")
	}
	if actor.ID == principalID {
		return nil, errors.InvalidInputError("id", "cannot deactivate yourself")
	}

	p, err := s.store.SetActive(ctx, principalID, false, s.now().UTC())
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.InternalError("failed to deactivate principal", err)
	}

	logger.Info("Principal deactivated",
		zap.String("principal_id", principalID),
		zap.String("actor_id", actor.ID))
	return p, nil
}

// EnsureBootstrapAdmin creates the first administrator when none exists yet.
// It is a no-op if email or secret is empty.
func (s *CredentialService) EnsureBootstrapAdmin(ctx context.Context, email, secret string) error {
	if email == "" || secret == "" {
		return nil
	}

	n, err := s.store.CountByRole(ctx, models.RoleAdministrator)
	if err != nil {
		return errors.InternalError("failed to count administrators", err)
	}
	if n > 0 {
		return nil
	}

	p, err := s.Register(ctx, models.RoleAdministrator, email, secret, "Administrator")
	if err != nil {
		if errors.Is(err, errors.ErrDuplicateEmail) {
			return nil
		}
		return err
	}

	logger.Info("Bootstrap administrator created", zap.String("principal_id", p.ID))
	return nil
}

func looksLikeEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
