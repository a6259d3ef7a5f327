package jobs

import (
	"context"
	"fmt"
	"time"

	"cadence/internal/domain"
	"cadence/internal/queue"

	"go.uber.org/zap"
)

// Background job names.
const (
	JobBookingReminders = "booking-reminders"
	JobDailyReport      = "daily-report"
)

// DayJob selects the day a background job works on; zero means today.
type DayJob struct {
	Date time.Time `json:"date,omitempty"`
}

// Background dispatches on the job name.
func (h *Handlers) Background(ctx context.Context, job *queue.Job) (any, error) {
	var p DayJob
	if len(job.Data) > 0 {
		if err := job.Decode(&p); err != nil {
			return nil, err
		}
	}
	day := p.Date
	if day.IsZero() {
		day = h.now()
	}
	day = startOfDay(day)

	switch job.Name {
	case JobBookingReminders:
		return h.bookingReminders(ctx, day)
	case JobDailyReport:
		return h.dailyReport(ctx, day)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, job.Name)
	}
}

// bookingReminders queues a reminder for every pending booking on day.
func (h *Handlers) bookingReminders(ctx context.Context, day time.Time) (any, error) {
	bookings, err := h.d.Bookings.ListByStatusBetween(ctx, domain.BookingPending, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	h.logger.Info("sending booking reminders", zap.Int("bookings", len(bookings)))
	stamp := day.Format(time.DateOnly)
	for _, b := range bookings {
		_, err := h.d.Queue.AddNotificationJob(ctx, queue.NotificationJob{
			UserID: b.UserID,
			Type:   "booking_reminder",
			Title:  "Booking Reminder",
			Body:   fmt.Sprintf("Your booking for %s is scheduled for today", b.Service.Name),
			Data:   map[string]string{"bookingId": b.ID},
		}, queue.WithJobID("reminder:"+b.ID+":"+stamp))
		if err != nil {
			return nil, fmt.Errorf("queue reminder for %s: %w", b.ID, err)
		}
	}
	return map[string]int{"reminders": len(bookings)}, nil
}

// dailyReport queues the report for the day before day.
func (h *Handlers) dailyReport(ctx context.Context, day time.Time) (any, error) {
	from := day.AddDate(0, 0, -1)
	job, err := h.d.Queue.AddReportJob(ctx, queue.ReportJob{
		ReportType: queue.ReportDaily,
		From:       from,
		To:         day,
	}, queue.WithJobID("report:daily:"+from.Format(time.DateOnly)))
	if err != nil {
		return nil, fmt.Errorf("queue daily report: %w", err)
	}
	return map[string]string{"reportJobId": job.ID}, nil
}
