package listeners

import (
	"context"
	"fmt"

	"cadence/internal/events"
	"cadence/internal/queue"

	"go.uber.org/zap"
)

func (r *registry) userCreated(ctx context.Context, p events.UserCreatedPayload) error {
	html, err := render(mailView{
		Heading: "Welcome to Cadence!",
		Name:    p.Name,
		Lines: []string{
			"Thanks for signing up. Your account is ready.",
			"Browse services, book appointments and chat with providers from the app.",
		},
	})
	if err != nil {
		return err
	}
	if _, err := r.Queue.AddEmailJob(ctx, queue.EmailJob{To: p.Email, Subject: "Welcome to Cadence!", HTML: html}); err != nil {
		return fmt.Errorf("queue welcome email: %w", err)
	}
	return nil
}

func (r *registry) userUpdated(ctx context.Context, p events.UserUpdatedPayload) error {
	keys := make([]string, 0, len(p.Changes))
	for k := range p.Changes {
		keys = append(keys, k)
	}
	r.logger.Info("user updated", zap.String("user_id", p.UserID), zap.Strings("fields", keys))
	return nil
}

func (r *registry) userDeleted(ctx context.Context, p events.UserDeletedPayload) error {
	html, err := render(mailView{
		Heading: "Account Deletion Confirmation",
		Lines: []string{
			"Your Cadence account has been deleted.",
			"If you did not request this, please contact support.",
		},
	})
	if err != nil {
		return err
	}
	if _, err := r.Queue.AddEmailJob(ctx, queue.EmailJob{To: p.Email, Subject: "Account Deletion Confirmation", HTML: html}); err != nil {
		return fmt.Errorf("queue deletion email: %w", err)
	}
	return nil
}
