package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/models"

	"go.uber.org/zap"
)

var (
	ErrForbidden     = errors.New("not allowed")
	ErrInvalidStatus = errors.New("invalid booking status")
	ErrBookingClosed = errors.New("booking is already cancelled or completed")
	ErrDateInPast    = errors.New("booking date must be in the future")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id, status, reason string) error
}

type ServiceLookup interface {
	GetByID(ctx context.Context, id string) (*models.Service, error)
}

type BookingService struct {
	bookings BookingStore
	services ServiceLookup
	bus      *events.Bus
	logger   *zap.Logger
	now      func() time.Time
}

func NewBookingService(bookings BookingStore, services ServiceLookup, bus *events.Bus, logger *zap.Logger) *BookingService {
	return &BookingService{bookings: bookings, services: services, bus: bus, logger: logger.Named("bookings"), now: time.Now}
}

func (s *BookingService) Create(ctx context.Context, userID, serviceID string, date time.Time, location string) (*models.Booking, error) {
	if !date.After(s.now()) {
		return nil, ErrDateInPast
	}
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	b := &models.Booking{
		UserID:    userID,
		ServiceID: svc.ID,
		Date:      date,
		Location:  strings.TrimSpace(location),
		Status:    domain.BookingPending,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	b.Service = *svc
	events.Emit(s.bus, ctx, events.BookingCreated, events.BookingCreatedPayload{
		BookingID: b.ID,
		UserID:    userID,
		ServiceID: svc.ID,
		Date:      date,
	})
	return b, nil
}

// UpdateStatus moves a booking to status. The booking's owner, the
// service's provider and admins may do so; cancelling goes through Cancel.
func (s *BookingService) UpdateStatus(ctx context.Context, actorID, role, bookingID, status string) (*models.Booking, error) {
	if !domain.ValidBookingStatus(status) || status == domain.BookingCancelled {
		return nil, ErrInvalidStatus
	}
	b, err := s.open(ctx, actorID, role, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == status {
		return b, nil
	}
	if err := s.bookings.UpdateStatus(ctx, b.ID, status, ""); err != nil {
		return nil, err
	}
	b.Status = status
	events.Emit(s.bus, ctx, events.BookingUpdated, events.BookingUpdatedPayload{
		BookingID: b.ID,
		UserID:    b.UserID,
		Status:    status,
	})
	return b, nil
}

func (s *BookingService) Cancel(ctx context.Context, actorID, role, bookingID, reason string) (*models.Booking, error) {
	b, err := s.open(ctx, actorID, role, bookingID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if err := s.bookings.UpdateStatus(ctx, b.ID, domain.BookingCancelled, reason); err != nil {
		return nil, err
	}
	b.Status = domain.BookingCancelled
	b.CancelReason = reason
	events.Emit(s.bus, ctx, events.BookingCancelled, events.BookingCancelledPayload{
		BookingID: b.ID,
		UserID:    b.UserID,
		Reason:    reason,
	})
	s.logger.Info("booking cancelled", zap.String("booking_id", b.ID), zap.String("by", actorID))
	return b, nil
}

// open loads a booking the actor may change and that is still open.
func (s *BookingService) open(ctx context.Context, actorID, role, bookingID string) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleAdmin && b.UserID != actorID && b.Service.ProviderID != actorID {
		return nil, ErrForbidden
	}
	if b.Status == domain.BookingCancelled || b.Status == domain.BookingCompleted {
		return nil, ErrBookingClosed
	}
	return b, nil
}
