package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
)

// AttachmentStore is an in-memory AttachmentStore
type AttachmentStore struct {
	mu          sync.RWMutex
	attachments map[string]*models.Attachment
	// active maps student id to the id of their active attachment
	active map[string]string
}

// NewAttachmentStore creates an empty attachment store
func NewAttachmentStore() *AttachmentStore {
	return &AttachmentStore{
		attachments: make(map[string]*models.Attachment),
		active:      make(map[string]string),
	}
}

func (s *AttachmentStore) CreateActive(ctx context.Context, a *models.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.active[a.StudentID]; taken {
		return errors.ErrActiveAttachmentExists
	}
	if _, exists := s.attachments[a.ID]; exists {
		return errors.ErrConflict
	}

	stored := *a
	stored.Status = models.AttachmentActive
	s.attachments[a.ID] = &stored
	s.active[a.StudentID] = a.ID
	return nil
}

func (s *AttachmentStore) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attachments[id]
	if !ok {
		return nil, errors.NotFoundError("attachment")
	}
	out := *a
	return &out, nil
}

func (s *AttachmentStore) GetByApplication(ctx context.Context, applicationID string) (*models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.attachments {
		if a.ApplicationID == applicationID {
			out := *a
			return &out, nil
		}
	}
	return nil, errors.NotFoundError("attachment")
}

func (s *AttachmentStore) GetActiveByStudent(ctx context.Context, studentID string) (*models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[studentID]
	if !ok {
		return nil, errors.NotFoundError("active attachment")
	}
	out := *s.attachments[id]
	return &out, nil
}

func (s *AttachmentStore) ListByStudent(ctx context.Context, studentID string) ([]*models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Attachment, 0)
	for _, a := range s.attachments {
		if a.StudentID == studentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *AttachmentStore) End(ctx context.Context, id string, status models.AttachmentStatus, reason *string, at time.Time) (*models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attachments[id]
	if !ok {
		return nil, errors.NotFoundError("attachment")
	}
	if a.Status != models.AttachmentActive {
		return nil, errors.ErrConflict
	}

	endedAt := at
	a.Status = status
	a.EndedAt = &endedAt
	if reason != nil {
		r := *reason
		a.EndReason = &r
	}
	if s.active[a.StudentID] == id {
		delete(s.active, a.StudentID)
	}

	out := *a
	return &out, nil
}
