package memory

import (
	"context"
	"sync"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
)

// PrincipalStore is an in-memory PrincipalStore
type PrincipalStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Principal
	byEmail map[string]string
}

// NewPrincipalStore creates an empty principal store
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		byID:    make(map[string]*models.Principal),
		byEmail: make(map[string]string),
	}
}

func emailKey(role models.Role, email string) string {
	return string(role) + "|" + email
}

// Create inserts p. The uniqueness check and the insert happen under one lock.
func (s *PrincipalStore) Create(ctx context.Context, p *models.Principal, scope models.EmailScope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[p.ID]; exists {
		return errors.ErrConflict
	}

	if scope == models.EmailScopeGlobal {
		for _, r := range models.AllRoles {
			if _, taken := s.byEmail[emailKey(r, p.Email)]; taken {
				return errors.ErrDuplicateEmail
			}
		}
	} else if _, taken := s.byEmail[emailKey(p.Role, p.Email)]; taken {
		return errors.ErrDuplicateEmail
	}

	stored := *p
	s.byID[p.ID] = &stored
	s.byEmail[emailKey(p.Role, p.Email)] = p.ID
	return nil
}

func (s *PrincipalStore) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFoundError("principal")
	}
	out := *p
	return &out, nil
}

func (s *PrincipalStore) GetByEmail(ctx context.Context, role models.Role, email string) (*models.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(role, email)]
	if !ok {
		return nil, errors.NotFoundError("principal")
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *PrincipalStore) UpdateSecretHash(ctx context.Context, id, secretHash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return errors.NotFoundError("principal")
	}
	p.SecretHash = secretHash
	p.UpdatedAt = at
	return nil
}

func (s *PrincipalStore) SetActive(ctx context.Context, id string, active bool, at time.Time) (*models.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFoundError("principal")
	}
	p.Active = active
	p.UpdatedAt = at
	out := *p
	return &out, nil
}

func (s *PrincipalStore) CountByRole(ctx context.Context, role models.Role) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.byID {
		if p.Role == role {
			n++
		}
	}
	return n, nil
}
