package jobs

import (
	"context"
	"errors"
	"time"

	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/queue"
	"cadence/internal/service"

	"go.uber.org/zap"
)

var ErrUnknownJob = errors.New("unknown background job")

// NotificationStore persists notifications written by queue jobs.
type NotificationStore interface {
	CreateOnce(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ClearFCMToken(ctx context.Context, id, token string) error
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type BookingStore interface {
	ListByStatusBetween(ctx context.Context, status string, from, to time.Time) ([]models.Booking, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type ReviewCounter interface {
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// Pusher delivers a push notification to one device.
type Pusher interface {
	Send(ctx context.Context, token string, p service.Push) error
}

// ImageStore derives processed variants of remote images.
type ImageStore interface {
	TransformFromURL(ctx context.Context, sourceURL, folder, publicID, transformation string) (string, error)
}

// Deps are the collaborators job handlers use. Push and Images may be nil
// when the integration is not configured.
type Deps struct {
	Mailer        Mailer
	Notifications NotificationStore
	Users         UserStore
	Bookings      BookingStore
	Reviews       ReviewCounter
	Push          Pusher
	Images        ImageStore
	Queue         *queue.Queue
	Bus           *events.Bus
	Logger        *zap.Logger
}

// Handlers holds one queue.Handler per queue.
type Handlers struct {
	d      Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{d: d, logger: d.Logger.Named("jobs"), now: time.Now}
}
