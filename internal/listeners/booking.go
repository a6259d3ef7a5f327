package listeners

import (
	"context"
	"fmt"
	"strings"

	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/queue"
	"cadence/internal/repository"

	"go.uber.org/zap"
)

const dateLayout = "Jan 2, 2006"

// loadBooking returns nil, nil when the booking or its user is gone.
func (r *registry) loadBooking(ctx context.Context, event events.Name, bookingID, userID string) (*models.Booking, *models.User, error) {
	booking, err := r.Bookings.GetByID(ctx, bookingID)
	if repository.IsNotFound(err) {
		r.logger.Warn("booking not found", zap.String("event", string(event)), zap.String("booking_id", bookingID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	user, err := r.user(ctx, event, userID)
	if err != nil || user == nil {
		return nil, nil, err
	}
	return booking, user, nil
}

func (r *registry) user(ctx context.Context, event events.Name, userID string) (*models.User, error) {
	user, err := r.Users.GetByID(ctx, userID)
	if repository.IsNotFound(err) {
		r.logger.Warn("user not found", zap.String("event", string(event)), zap.String("user_id", userID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user, nil
}

func bookingRows(b *models.Booking) []row {
	return []row{
		{"Service", b.Service.Name},
		{"Date", b.Date.Format(dateLayout)},
		{"Location", b.Location},
		{"Status", b.Status},
		{"Booking ID", b.ID},
	}
}

func (r *registry) bookingCreated(ctx context.Context, p events.BookingCreatedPayload) error {
	booking, user, err := r.loadBooking(ctx, events.BookingCreated.Name(), p.BookingID, p.UserID)
	if err != nil || booking == nil {
		return err
	}
	html, err := render(mailView{
		Heading: "Booking Confirmed!",
		Name:    user.Name,
		Lines:   []string{"Your booking has been successfully confirmed. Here are the details:"},
		Rows:    bookingRows(booking),
	})
	if err != nil {
		return err
	}
	if _, err := r.Queue.AddEmailJob(ctx, queue.EmailJob{
		To:      user.Email,
		Subject: "Booking Confirmation - " + booking.Service.Name,
		HTML:    html,
	}); err != nil {
		return fmt.Errorf("queue booking email: %w", err)
	}
	_, err = r.Queue.AddNotificationJob(ctx, queue.NotificationJob{
		UserID: p.UserID,
		Type:   "booking_confirmed",
		Title:  "Booking Confirmed",
		Body:   fmt.Sprintf("Your booking for %s on %s is confirmed.", booking.Service.Name, booking.Date.Format(dateLayout)),
		Data:   map[string]string{"bookingId": p.BookingID, "action": "view_booking"},
	})
	return err
}

func (r *registry) bookingUpdated(ctx context.Context, p events.BookingUpdatedPayload) error {
	booking, user, err := r.loadBooking(ctx, events.BookingUpdated.Name(), p.BookingID, p.UserID)
	if err != nil || booking == nil {
		return err
	}
	if _, err := r.Queue.AddNotificationJob(ctx, queue.NotificationJob{
		UserID: p.UserID,
		Type:   "booking_updated",
		Title:  "Booking Status Updated",
		Body:   fmt.Sprintf("Your booking for %s is now %s", booking.Service.Name, p.Status),
		Data:   map[string]string{"bookingId": p.BookingID, "status": p.Status},
	}); err != nil {
		return err
	}
	if p.Status != domain.BookingConfirmed && p.Status != domain.BookingCompleted {
		return nil
	}
	lines := []string{fmt.Sprintf("Your booking for %s has been %s.", booking.Service.Name, strings.ToLower(p.Status))}
	if p.Status == domain.BookingCompleted {
		lines = append(lines, "Thank you for using our service! We'd love to hear your feedback.")
	}
	html, err := render(mailView{Heading: "Booking Status Update", Name: user.Name, Lines: lines, Rows: bookingRows(booking)})
	if err != nil {
		return err
	}
	_, err = r.Queue.AddEmailJob(ctx, queue.EmailJob{
		To:      user.Email,
		Subject: fmt.Sprintf("Booking %s - %s", p.Status, booking.Service.Name),
		HTML:    html,
	})
	return err
}

func (r *registry) bookingCancelled(ctx context.Context, p events.BookingCancelledPayload) error {
	booking, user, err := r.loadBooking(ctx, events.BookingCancelled.Name(), p.BookingID, p.UserID)
	if err != nil || booking == nil {
		return err
	}
	body := p.Reason
	if body == "" {
		body = fmt.Sprintf("Your booking for %s on %s has been cancelled.", booking.Service.Name, booking.Date.Format(dateLayout))
	}
	lines := []string{fmt.Sprintf("Your booking for %s has been cancelled.", booking.Service.Name)}
	if p.Reason != "" {
		lines = append(lines, "Reason: "+p.Reason)
	}
	html, err := render(mailView{Heading: "Booking Cancelled", Name: user.Name, Lines: lines, Rows: bookingRows(booking)})
	if err != nil {
		return err
	}
	if _, err := r.Queue.AddEmailJob(ctx, queue.EmailJob{
		To:      user.Email,
		Subject: "Booking Cancelled - " + booking.Service.Name,
		HTML:    html,
	}); err != nil {
		return err
	}
	_, err = r.Queue.AddNotificationJob(ctx, queue.NotificationJob{
		UserID: p.UserID,
		Type:   "booking_cancelled",
		Title:  "Booking Cancelled",
		Body:   body,
		Data:   map[string]string{"bookingId": p.BookingID},
	})
	return err
}
