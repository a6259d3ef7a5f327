package service

import (
	"context"
	"encoding/json"
	"errors"

	"cadence/internal/models"

	"go.uber.org/zap"
)

// ErrPushDisabled is returned by Broadcast when Firebase is not configured.
var ErrPushDisabled = errors.New("push notifications are not configured")

type NotificationStore interface {
	CreateMany(ctx context.Context, list []models.Notification) error
	ListByReceiver(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type PushRecipients interface {
	ListWithFCMToken(ctx context.Context) ([]models.User, error)
	ClearFCMToken(ctx context.Context, id, token string) error
}

// Multicaster is satisfied by *FCMService.
type Multicaster interface {
	Multicast(ctx context.Context, tokens []string, p Push) (*MulticastResult, error)
}

type NotificationService struct {
	store  NotificationStore
	users  PushRecipients
	push   Multicaster
	logger *zap.Logger
}

// NewNotificationService wires the inbox and the admin broadcast. push may
// be nil when Firebase is not configured.
func NewNotificationService(store NotificationStore, users PushRecipients, push Multicaster, logger *zap.Logger) *NotificationService {
	return &NotificationService{store: store, users: users, push: push, logger: logger.Named("notifications")}
}

func (s *NotificationService) List(ctx context.Context, userID string, page, limit int) ([]models.Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.ListByReceiver(ctx, userID, limit, (page-1)*limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.store.MarkRead(ctx, id, userID)
}

type BroadcastResult struct {
	Recipients int `json:"recipients"`
	MulticastResult
}

// Broadcast pushes one message to every user holding a device token, stores
// it in their inbox and drops the tokens FCM rejected.
func (s *NotificationService) Broadcast(ctx context.Context, title, body string, data map[string]string) (*BroadcastResult, error) {
	if s.push == nil {
		return nil, ErrPushDisabled
	}
	users, err := s.users.ListWithFCMToken(ctx)
	if err != nil {
		return nil, err
	}
	res := &BroadcastResult{Recipients: len(users), MulticastResult: MulticastResult{FailedTokens: []string{}}}
	if len(users) == 0 {
		return res, nil
	}
	tokens := make([]string, 0, len(users))
	owner := make(map[string]string, len(users))
	for _, u := range users {
		tokens = append(tokens, u.FCMToken)
		owner[u.FCMToken] = u.ID
	}

	var raw string
	if len(data) > 0 {
		b, _ := json.Marshal(data)
		raw = string(b)
	}
	inbox := make([]models.Notification, 0, len(users))
	for _, u := range users {
		inbox = append(inbox, models.Notification{ReceiverID: u.ID, Title: title, Body: body, Data: raw})
	}
	if err := s.store.CreateMany(ctx, inbox); err != nil {
		return nil, err
	}

	mr, err := s.push.Multicast(ctx, tokens, Push{Title: title, Body: body, Data: data})
	if mr != nil {
		res.MulticastResult = *mr
	}
	if err != nil {
		return res, err
	}
	for _, tok := range mr.InvalidTokens {
		if err := s.users.ClearFCMToken(ctx, owner[tok], tok); err != nil {
			s.logger.Warn("clear invalid token", zap.String("user_id", owner[tok]), zap.Error(err))
		}
	}
	s.logger.Info("broadcast sent",
		zap.Int("recipients", res.Recipients),
		zap.Int("success", res.SuccessCount),
		zap.Int("failure", res.FailureCount),
		zap.Int("invalid", len(mr.InvalidTokens)))
	return res, nil
}
