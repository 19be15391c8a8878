package services

import (
	"context"
	"strings"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/attachtrack/attachtrack-api/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var adminOnly = models.NewRoleSet(models.RoleAdministrator)

// LedgerService tracks position capacity. Reservations are taken when an
// application is approved and returned when its attachment ends.
type LedgerService struct {
	positions repository.PositionStore
	now       func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(positions repository.PositionStore) *LedgerService {
	return &LedgerService{positions: positions, now: time.Now}
}

// CreatePosition opens a new position
func (s *LedgerService) CreatePosition(ctx context.Context, actor *models.Principal, organizationID, title string, capacity int) (*models.Position, error) {
	if err := Authorize(actor, adminOnly); err != nil {
		return nil, err
	}
	organizationID = strings.TrimSpace(organizationID)
	title = strings.TrimSpace(title)
	if organizationID == "" {
		return nil, errors.InvalidInputError("organizationId", "is required")
	}
	if title == "" {
		return nil, errors.InvalidInputError("title", "is required")
	}
	if capacity < 0 {
		return nil, errors.InvalidInputError("capacity", "must not be negative")
	}

	now := s.now().UTC()
	p := &models.Position{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Title:          title,
		Capacity:       capacity,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.positions.Create(ctx, p); err != nil {
		return nil, errors.InternalError("failed to create position", err)
	}

	logger.Info("Position created",
		zap.String("position_id", p.ID),
		zap.String("organization_id", organizationID),
		zap.Int("capacity", capacity))
	return p, nil
}

// GetPosition fetches a position
func (s *LedgerService) GetPosition(ctx context.Context, positionID string) (*models.Position, error) {
	p, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return nil, storeError(err, "failed to load position")
	}
	return p, nil
}

// AvailableSlots returns capacity minus reserved
func (s *LedgerService) AvailableSlots(ctx context.Context, positionID string) (int, error) {
	p, err := s.GetPosition(ctx, positionID)
	if err != nil {
		return 0, err
	}
	return p.AvailableSlots(), nil
}

// TryReserve takes one slot or fails with ErrNoCapacity, ErrPositionInactive or ErrNotFound
func (s *LedgerService) TryReserve(ctx context.Context, positionID string) (*models.Reservation, error) {
	at := s.now().UTC()
	p, err := s.positions.TryReserve(ctx, positionID, at)
	if err != nil {
		metrics.ReservationOutcomes.WithLabelValues("reserve", string(errors.KindOf(err))).Inc()
		return nil, storeError(err, "failed to reserve slot")
	}

	metrics.ReservationOutcomes.WithLabelValues("reserve", "success").Inc()
	return &models.Reservation{
		PositionID: p.ID,
		Remaining:  p.AvailableSlots(),
		TakenAt:    at,
	}, nil
}

// Release returns one slot
func (s *LedgerService) Release(ctx context.Context, positionID string) error {
	if _, err := s.positions.Release(ctx, positionID, s.now().UTC()); err != nil {
		metrics.ReservationOutcomes.WithLabelValues("release", string(errors.KindOf(err))).Inc()
		if errors.Is(err, errors.ErrConflict) {
			logger.Error("Release on position with no reservations", zap.String("position_id", positionID))
		}
		return storeError(err, "failed to release slot")
	}

	metrics.ReservationOutcomes.WithLabelValues("release", "success").Inc()
	return nil
}

// UpdateCapacity changes a position's capacity; it may not drop below reserved
func (s *LedgerService) UpdateCapacity(ctx context.Context, actor *models.Principal, positionID string, capacity int) (*models.Position, error) {
	if err := Authorize(actor, adminOnly); err != nil {
		return nil, err
	}
	if capacity < 0 {
		return nil, errors.InvalidInputError("capacity", "must not be negative")
	}

	p, err := s.positions.UpdateCapacity(ctx, positionID, capacity, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "failed to update capacity")
	}

	logger.Info("Position capacity updated",
		zap.String("position_id", positionID),
		zap.Int("capacity", capacity),
		zap.Int("reserved", p.Reserved))
	return p, nil
}

// SetActive opens or closes a position to new applications and approvals
func (s *LedgerService) SetActive(ctx context.Context, actor *models.Principal, positionID string, active bool) (*models.Position, error) {
	if err := Authorize(actor, adminOnly); err != nil {
		return nil, err
	}

	p, err := s.positions.SetActive(ctx, positionID, active, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "failed to update position")
	}

	logger.Info("Position active flag updated",
		zap.String("position_id", positionID),
		zap.Bool("active", active))
	return p, nil
}

// storeError passes business errors through and wraps everything else as internal
func storeError(err error, msg string) error {
	if errors.IsBusiness(err) {
		return err
	}
	return errors.InternalError(msg, err)
}
