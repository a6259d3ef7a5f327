package service

import (
	"context"
	"errors"

	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/models"

	"go.uber.org/zap"
)

var ErrPaymentSettled = errors.New("payment already settled")

type PaymentStore interface {
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id, status, reason string) error
}

// PaymentService records the outcome reported by the payment provider.
// Talking to the provider itself lives elsewhere.
type PaymentService struct {
	payments PaymentStore
	bus      *events.Bus
	logger   *zap.Logger
}

func NewPaymentService(payments PaymentStore, bus *events.Bus, logger *zap.Logger) *PaymentService {
	return &PaymentService{payments: payments, bus: bus, logger: logger.Named("payments")}
}

// Settle marks a pending payment COMPLETED or FAILED and emits the matching event.
func (s *PaymentService) Settle(ctx context.Context, paymentID, status, reason string) (*models.Payment, error) {
	if status != domain.PaymentCompleted && status != domain.PaymentFailed {
		return nil, ErrInvalidStatus
	}
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentPending {
		return nil, ErrPaymentSettled
	}
	if status == domain.PaymentCompleted {
		reason = ""
	} else if reason == "" {
		reason = "declined"
	}
	if err := s.payments.UpdateStatus(ctx, p.ID, status, reason); err != nil {
		return nil, err
	}
	p.Status = status
	p.FailureReason = reason

	if status == domain.PaymentCompleted {
		var bookingID string
		if p.BookingID != nil {
			bookingID = *p.BookingID
		}
		events.Emit(s.bus, ctx, events.PaymentCompleted, events.PaymentCompletedPayload{
			PaymentID: p.ID,
			UserID:    p.UserID,
			Amount:    p.Amount,
			BookingID: bookingID,
		})
	} else {
		events.Emit(s.bus, ctx, events.PaymentFailed, events.PaymentFailedPayload{
			UserID: p.UserID,
			Amount: p.Amount,
			Reason: reason,
		})
	}
	s.logger.Info("payment settled", zap.String("payment_id", p.ID), zap.String("status", status))
	return p, nil
}
