package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
)

// ApplicationStore is an in-memory ApplicationStore
type ApplicationStore struct {
	mu           sync.RWMutex
	applications map[string]*models.Application
	// live maps student|position to the id of the live application
	live map[string]string
}

// NewApplicationStore creates an empty application store
func NewApplicationStore() *ApplicationStore {
	return &ApplicationStore{
		applications: make(map[string]*models.Application),
		live:         make(map[string]string),
	}
}

func liveKey(studentID, positionID string) string {
	return studentID + "|" + positionID
}

func (s *ApplicationStore) CreateLive(ctx context.Context, a *models.Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := liveKey(a.StudentID, a.PositionID)
	if _, taken := s.live[key]; taken {
		return errors.ErrDuplicateLiveApplication
	}
	if _, exists := s.applications[a.ID]; exists {
		return errors.ErrConflict
	}

	stored := *a
	s.applications[a.ID] = &stored
	if a.Status.IsLive() {
		s.live[key] = a.ID
	}
	return nil
}

func (s *ApplicationStore) GetByID(ctx context.Context, id string) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applications[id]
	if !ok {
		return nil, errors.NotFoundError("application")
	}
	out := *a
	return &out, nil
}

func (s *ApplicationStore) CompareAndSetStatus(ctx context.Context, change models.StatusChange) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[change.ApplicationID]
	if !ok {
		return nil, errors.NotFoundError("application")
	}
	if a.Status != change.From {
		return nil, errors.ErrConflict
	}

	key := liveKey(a.StudentID, a.PositionID)
	if change.To.IsLive() && !change.From.IsLive() {
		// Rolling back into a live status must not shadow a newer live application
		if _, taken := s.live[key]; taken {
			return nil, errors.ErrDuplicateLiveApplication
		}
		s.live[key] = a.ID
	}
	if !change.To.IsLive() && s.live[key] == a.ID {
		delete(s.live, key)
	}

	a.Status = change.To
	a.UpdatedAt = change.At
	if change.Restore != nil {
		r := *change.Restore
		a.ReviewedBy, a.ReviewedAt, a.ReviewNotes = r.ReviewedBy, r.ReviewedAt, r.ReviewNotes
		out := *a
		return &out, nil
	}
	if change.ReviewerID != nil {
		reviewer := *change.ReviewerID
		reviewedAt := change.At
		a.ReviewedBy = &reviewer
		a.ReviewedAt = &reviewedAt
	}
	if change.Notes != nil {
		notes := *change.Notes
		a.ReviewNotes = &notes
	}

	out := *a
	return &out, nil
}

func (s *ApplicationStore) ListByStudent(ctx context.Context, studentID string) ([]*models.Application, error) {
	return s.list(ctx, func(a *models.Application) bool { return a.StudentID == studentID })
}

func (s *ApplicationStore) ListByPosition(ctx context.Context, positionID string) ([]*models.Application, error) {
	return s.list(ctx, func(a *models.Application) bool { return a.PositionID == positionID })
}

func (s *ApplicationStore) list(ctx context.Context, match func(*models.Application) bool) ([]*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Application, 0)
	for _, a := range s.applications {
		if match(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AppliedAt.Before(out[j].AppliedAt)
	})
	return out, nil
}
