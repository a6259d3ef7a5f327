package listeners

import (
	"context"
	"fmt"
	"strconv"

	"cadence/internal/events"
	"cadence/internal/queue"
	"cadence/internal/repository"

	"go.uber.org/zap"
)

func (r *registry) reviewCreated(ctx context.Context, p events.ReviewCreatedPayload) error {
	review, err := r.Reviews.GetByID(ctx, p.ReviewID)
	if repository.IsNotFound(err) {
		r.logger.Warn("review not found", zap.String("review_id", p.ReviewID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load review %s: %w", p.ReviewID, err)
	}
	_, err = r.Queue.AddNotificationJob(ctx, queue.NotificationJob{
		UserID: p.UserID,
		Type:   "review_thanks",
		Title:  "Thank You for Your Review!",
		Body:   fmt.Sprintf("Thank you for reviewing %s. Your feedback helps us improve!", review.Service.Name),
		Data:   map[string]string{"reviewId": p.ReviewID, "rating": strconv.Itoa(p.Rating)},
	})
	return err
}
