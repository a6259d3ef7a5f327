package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/queue"
	"cadence/internal/repository"
	"cadence/internal/service"

	"go.uber.org/zap"
)

type NotificationResult struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notificationId"`
	Pushed         bool   `json:"pushed"`
}

// Notification stores the notification, pushes it to the user's device and
// announces it on the bus. The record is keyed by the job, so a retry after
// a failed push reuses it.
func (h *Handlers) Notification(ctx context.Context, job *queue.Job) (any, error) {
	var p queue.NotificationJob
	if err := job.Decode(&p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		return nil, errors.New("notification job has no user")
	}

	data := make(map[string]string, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	if p.Type != "" {
		data["type"] = p.Type
	}

	source := job.Queue + ":" + job.ID
	n := &models.Notification{
		ReceiverID:  p.UserID,
		Title:       p.Title,
		Body:        p.Body,
		SourceJobID: &source,
	}
	if p.SenderID != "" {
		n.SenderID = &p.SenderID
	}
	if len(data) > 0 {
		raw, _ := json.Marshal(data)
		n.Data = string(raw)
	}
	n, err := h.d.Notifications.CreateOnce(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}

	pushed, err := h.push(ctx, p.UserID, service.Push{Title: p.Title, Body: p.Body, Data: data})
	if err != nil {
		return nil, err
	}

	if h.d.Bus != nil {
		events.Emit(h.d.Bus, ctx, events.NotificationSent, events.NotificationSentPayload{
			NotificationID: n.ID,
			UserID:         p.UserID,
			Type:           p.Type,
			Title:          p.Title,
			Body:           p.Body,
		})
	}
	return NotificationResult{Success: true, NotificationID: n.ID, Pushed: pushed}, nil
}

func (h *Handlers) push(ctx context.Context, userID string, p service.Push) (bool, error) {
	if h.d.Push == nil {
		return false, nil
	}
	u, err := h.d.Users.GetByID(ctx, userID)
	if repository.IsNotFound(err) {
		h.logger.Warn("notification for unknown user", zap.String("user_id", userID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if u.FCMToken == "" {
		return false, nil
	}
	err = h.d.Push.Send(ctx, u.FCMToken, p)
	if errors.Is(err, service.ErrTokenInvalid) {
		h.logger.Info("dropping invalid fcm token", zap.String("user_id", userID))
		if cErr := h.d.Users.ClearFCMToken(ctx, userID, u.FCMToken); cErr != nil {
			h.logger.Warn("clear fcm token", zap.String("user_id", userID), zap.Error(cErr))
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
