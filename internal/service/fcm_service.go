package service

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrTokenInvalid marks a push rejected because the device token is
// unregistered or malformed. The token should be dropped, not retried.
var ErrTokenInvalid = errors.New("fcm: invalid registration token")

// fcmMulticastLimit is the most tokens one multicast call accepts.
const fcmMulticastLimit = 500

// messenger is the part of *messaging.Client the service uses.
type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMService sends push notifications via Firebase Cloud Messaging.
type FCMService struct {
	client messenger
	logger *zap.Logger
}

// NewFCMService creates an FCM service. Returns nil if Firebase is not configured.
func NewFCMService(serviceAccountPath string, logger *zap.Logger) *FCMService {
	logger = logger.Named("fcm")
	if serviceAccountPath == "" {
		logger.Info("firebase not configured, push disabled")
		return nil
	}
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		logger.Error("init firebase app", zap.Error(err))
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		logger.Error("get messaging client", zap.Error(err))
		return nil
	}
	return &FCMService{client: client, logger: logger}
}

// Push is one notification payload. Data values must be strings.
type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

func androidConfig() *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Sound: "default",
		},
	}
}

func apnsConfig() *messaging.APNSConfig {
	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound: "default",
			},
		},
	}
}

// Send pushes p to one device token. A nil service or empty token is a no-op.
func (s *FCMService) Send(ctx context.Context, token string, p Push) error {
	if s == nil || token == "" {
		return nil
	}
	_, err := s.client.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{Title: p.Title, Body: p.Body},
		Data:         p.Data,
		Token:        token,
		Android:      androidConfig(),
		APNS:         apnsConfig(),
	})
	if err != nil {
		if tokenRejected(err) {
			return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

// MulticastResult summarises a push to many devices.
type MulticastResult struct {
	SuccessCount int      `json:"successCount"`
	FailureCount int      `json:"failureCount"`
	FailedTokens []string `json:"failedTokens"`
	// InvalidTokens is the subset of FailedTokens that should be dropped.
	InvalidTokens []string `json:"-"`
}

// Multicast pushes p to every token, in batches the API accepts.
func (s *FCMService) Multicast(ctx context.Context, tokens []string, p Push) (*MulticastResult, error) {
	res := &MulticastResult{FailedTokens: []string{}}
	if s == nil || len(tokens) == 0 {
		return res, nil
	}
	for start := 0; start < len(tokens); start += fcmMulticastLimit {
		end := min(start+fcmMulticastLimit, len(tokens))
		batch := tokens[start:end]
		br, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: &messaging.Notification{Title: p.Title, Body: p.Body},
			Data:         p.Data,
			Android:      androidConfig(),
			APNS:         apnsConfig(),
		})
		if err != nil {
			return res, fmt.Errorf("fcm multicast: %w", err)
		}
		res.SuccessCount += br.SuccessCount
		res.FailureCount += br.FailureCount
		for i, r := range br.Responses {
			if r.Success {
				continue
			}
			res.FailedTokens = append(res.FailedTokens, batch[i])
			if tokenRejected(r.Error) {
				res.InvalidTokens = append(res.InvalidTokens, batch[i])
			}
		}
	}
	s.logger.Info("multicast sent",
		zap.Int("success", res.SuccessCount),
		zap.Int("failure", res.FailureCount))
	return res, nil
}

func tokenRejected(err error) bool {
	return err != nil && (messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err))
}
