package listeners

import (
	"context"
	"fmt"

	"cadence/internal/events"
	"cadence/internal/queue"
	"cadence/internal/repository"

	"go.uber.org/zap"
)

func (r *registry) paymentCompleted(ctx context.Context, p events.PaymentCompletedPayload) error {
	user, err := r.user(ctx, events.PaymentCompleted.Name(), p.UserID)
	if err != nil || user == nil {
		return err
	}
	rows := []row{
		{"Amount", fmt.Sprintf("$%.2f", p.Amount)},
		{"Payment ID", p.PaymentID},
	}
	if p.BookingID != "" {
		booking, err := r.Bookings.GetByID(ctx, p.BookingID)
		switch {
		case err == nil:
			rows = append(rows, row{"Service", booking.Service.Name}, row{"Booking ID", booking.ID})
		case repository.IsNotFound(err):
			r.logger.Warn("payment for missing booking", zap.String("booking_id", p.BookingID))
		default:
			return fmt.Errorf("load booking %s: %w", p.BookingID, err)
		}
	}
	html, err := render(mailView{
		Heading: "Payment Successful",
		Name:    user.Name,
		Lines:   []string{"We received your payment. Here is your receipt:"},
		Rows:    rows,
	})
	if err != nil {
		return err
	}
	if _, err := r.Queue.AddEmailJob(ctx, queue.EmailJob{To: user.Email, Subject: "Payment Successful", HTML: html}); err != nil {
		return err
	}
	data := map[string]string{"paymentId": p.PaymentID}
	if p.BookingID != "" {
		data["bookingId"] = p.BookingID
	}
	_, err = r.Queue.AddNotificationJob(ctx, queue.NotificationJob{
		UserID: p.UserID,
		Type:   "payment_completed",
		Title:  "Payment Successful",
		Body:   fmt.Sprintf("Your payment of $%.2f was successful.", p.Amount),
		Data:   data,
	})
	return err
}

func (r *registry) paymentFailed(ctx context.Context, p events.PaymentFailedPayload) error {
	user, err := r.user(ctx, events.PaymentFailed.Name(), p.UserID)
	if err != nil || user == nil {
		return err
	}
	html, err := render(mailView{
		Heading: "Payment Failed",
		Name:    user.Name,
		Lines: []string{
			fmt.Sprintf("Your payment of $%.2f could not be processed.", p.Amount),
			"Reason: " + p.Reason,
			"Please check your payment details and try again.",
		},
	})
	if err != nil {
		return err
	}
	if _, err := r.Queue.AddEmailJob(ctx, queue.EmailJob{To: user.Email, Subject: "Payment Failed", HTML: html}); err != nil {
		return err
	}
	_, err = r.Queue.AddNotificationJob(ctx, queue.NotificationJob{
		UserID: p.UserID,
		Type:   "payment_failed",
		Title:  "Payment Failed",
		Body:   "Payment failed: " + p.Reason,
	})
	return err
}
