package listeners

import (
	"context"

	"cadence/internal/events"
	"cadence/internal/queue"
	"cadence/internal/ws"

	"go.uber.org/zap"
)

// messageSent queues a "New message" notification when the receiver has no
// live connection. Online receivers already got the frame.
func (r *registry) messageSent(ctx context.Context, p events.MessageSentPayload) error {
	if r.Presence.IsOnline(p.ReceiverID) {
		return nil
	}
	body := p.Preview
	if body == "" {
		body = "You have a new message"
	}
	_, err := r.Queue.AddNotificationJob(ctx, queue.NotificationJob{
		UserID:   p.ReceiverID,
		SenderID: p.SenderID,
		Type:     "new_message",
		Title:    "New message",
		Body:     body,
		Data:     map[string]string{"roomId": p.RoomID, "messageId": p.MessageID, "senderId": p.SenderID},
	}, queue.WithJobID("message:"+p.MessageID))
	return err
}

// notificationSent pushes the stored notification to the user's open sockets.
func (r *registry) notificationSent(ctx context.Context, p events.NotificationSentPayload) error {
	delivered := r.Presence.SendToUser(p.UserID, ws.Frame(ws.EventNotification, ws.NotificationPush{
		ID:    p.NotificationID,
		Type:  p.Type,
		Title: p.Title,
		Body:  p.Body,
	}))
	if delivered {
		r.logger.Debug("notification delivered live", zap.String("user_id", p.UserID))
	}
	return nil
}
