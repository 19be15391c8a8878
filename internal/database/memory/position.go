package memory

import (
	"context"
	"sync"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
)

// PositionStore is an in-memory PositionStore. A single mutex makes every
// reserve and release a linearizable check-and-write.
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]*models.Position
}

// NewPositionStore creates an empty position store
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]*models.Position)}
}

func (s *PositionStore) Create(ctx context.Context, p *models.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID]; exists {
		return errors.ErrConflict
	}
	stored := *p
	s.positions[p.ID] = &stored
	return nil
}

func (s *PositionStore) GetByID(ctx context.Context, id string) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, errors.NotFoundError("position")
	}
	out := *p
	return &out, nil
}

func (s *PositionStore) TryReserve(ctx context.Context, id string, at time.Time) (*models.Position, error) {
	return s.update(ctx, id, func(p *models.Position) error {
		if !p.Active {
			return errors.ErrPositionInactive
		}
		if p.Reserved >= p.Capacity {
			return errors.ErrNoCapacity
		}
		p.Reserved++
		p.UpdatedAt = at
		return nil
	})
}

func (s *PositionStore) Release(ctx context.Context, id string, at time.Time) (*models.Position, error) {
	return s.update(ctx, id, func(p *models.Position) error {
		if p.Reserved == 0 {
			return errors.ErrConflict
		}
		p.Reserved--
		p.UpdatedAt = at
		return nil
	})
}

func (s *PositionStore) UpdateCapacity(ctx context.Context, id string, capacity int, at time.Time) (*models.Position, error) {
	return s.update(ctx, id, func(p *models.Position) error {
		if capacity < p.Reserved {
			return errors.ErrCapacityBelowReserved
		}
		p.Capacity = capacity
		p.UpdatedAt = at
		return nil
	})
}

func (s *PositionStore) SetActive(ctx context.Context, id string, active bool, at time.Time) (*models.Position, error) {
	return s.update(ctx, id, func(p *models.Position) error {
		p.Active = active
		p.UpdatedAt = at
		return nil
	})
}

// update applies fn to a working copy and stores it only if fn succeeds
func (s *PositionStore) update(ctx context.Context, id string, fn func(p *models.Position) error) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.positions[id]
	if !ok {
		return nil, errors.NotFoundError("position")
	}

	next := *current
	if err := fn(&next); err != nil {
		return nil, err
	}
	s.positions[id] = &next

	out := next
	return &out, nil
}
