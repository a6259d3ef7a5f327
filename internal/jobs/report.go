package jobs

import (
	"context"
	"fmt"
	"time"

	"cadence/internal/queue"

	"go.uber.org/zap"
)

type ReportResult struct {
	ReportType  string    `json:"reportType"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	NewUsers    int64     `json:"newUsers"`
	NewBookings int64     `json:"newBookings"`
	NewReviews  int64     `json:"newReviews"`
}

// Report counts activity in [From, To). Without a window it covers
// yesterday.
func (h *Handlers) Report(ctx context.Context, job *queue.Job) (any, error) {
	var p queue.ReportJob
	if err := job.Decode(&p); err != nil {
		return nil, err
	}
	if p.ReportType != queue.ReportDaily {
		return nil, fmt.Errorf("unsupported report type %q", p.ReportType)
	}
	if p.From.IsZero() || p.To.IsZero() {
		today := startOfDay(h.now())
		p.From, p.To = today.AddDate(0, 0, -1), today
	}
	if !p.To.After(p.From) {
		return nil, fmt.Errorf("empty report window %s..%s", p.From, p.To)
	}

	res := ReportResult{ReportType: p.ReportType, From: p.From, To: p.To}
	var err error
	if res.NewUsers, err = h.d.Users.CountCreatedBetween(ctx, p.From, p.To); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if res.NewBookings, err = h.d.Bookings.CountCreatedBetween(ctx, p.From, p.To); err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	if res.NewReviews, err = h.d.Reviews.CountCreatedBetween(ctx, p.From, p.To); err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}
	h.logger.Info("daily report",
		zap.Time("from", p.From),
		zap.Int64("users", res.NewUsers),
		zap.Int64("bookings", res.NewBookings),
		zap.Int64("reviews", res.NewReviews))
	return res, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
