package listeners

import (
	"context"

	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/queue"

	"go.uber.org/zap"
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type BookingLookup interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
}

type ReviewLookup interface {
	GetByID(ctx context.Context, id string) (*models.Review, error)
}

// Presence is the gateway view the realtime listeners need.
type Presence interface {
	IsOnline(userID string) bool
	SendToUser(userID string, frame any) bool
}

// Deps are the collaborators of the event listeners. Presence may be nil in
// a process that runs no gateway; the realtime listeners are then skipped.
type Deps struct {
	Queue    *queue.Queue
	Users    UserLookup
	Bookings BookingLookup
	Reviews  ReviewLookup
	Presence Presence
	Logger   *zap.Logger
}

type registry struct {
	Deps
	logger *zap.Logger
}

// RegisterAll subscribes every domain listener to bus. It is called once at
// startup, before the first event is emitted.
func RegisterAll(bus *events.Bus, d Deps) []events.ListenerID {
	r := &registry{Deps: d, logger: d.Logger.Named("listeners")}
	ids := []events.ListenerID{
		events.On(bus, events.UserCreated, r.userCreated),
		events.On(bus, events.UserUpdated, r.userUpdated),
		events.On(bus, events.UserDeleted, r.userDeleted),
		events.On(bus, events.BookingCreated, r.bookingCreated),
		events.On(bus, events.BookingUpdated, r.bookingUpdated),
		events.On(bus, events.BookingCancelled, r.bookingCancelled),
		events.On(bus, events.PaymentCompleted, r.paymentCompleted),
		events.On(bus, events.PaymentFailed, r.paymentFailed),
		events.On(bus, events.ReviewCreated, r.reviewCreated),
	}
	if d.Presence != nil {
		ids = append(ids,
			events.On(bus, events.MessageSent, r.messageSent),
			events.On(bus, events.NotificationSent, r.notificationSent),
		)
	}
	r.logger.Info("event listeners registered", zap.Int("count", len(ids)))
	return ids
}
