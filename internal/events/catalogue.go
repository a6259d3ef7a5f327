package events

import "time"

// Name identifies an event on the bus.
type Name string

// Event is a typed event key. The payload type P is fixed per name, so
// listeners and emitters for the same event cannot disagree on its shape.
type Event[P any] struct {
	name Name
}

func (e Event[P]) Name() Name { return e.name }

var (
	UserCreated = Event[UserCreatedPayload]{name: "user.created"}
	UserUpdated = Event[UserUpdatedPayload]{name: "user.updated"}
	UserDeleted = Event[UserDeletedPayload]{name: "user.deleted"}

	BookingCreated   = Event[BookingCreatedPayload]{name: "booking.created"}
	BookingUpdated   = Event[BookingUpdatedPayload]{name: "booking.updated"}
	BookingCancelled = Event[BookingCancelledPayload]{name: "booking.cancelled"}

	PaymentCompleted = Event[PaymentCompletedPayload]{name: "payment.completed"}
	PaymentFailed    = Event[PaymentFailedPayload]{name: "payment.failed"}

	ReviewCreated = Event[ReviewCreatedPayload]{name: "review.created"}

	NotificationSent = Event[NotificationSentPayload]{name: "notification.sent"}

	MessageSent = Event[MessageSentPayload]{name: "message.sent"}
)

// Names is the closed set of events the bus carries.
func Names() []Name {
	return []Name{
		UserCreated.name, UserUpdated.name, UserDeleted.name,
		BookingCreated.name, BookingUpdated.name, BookingCancelled.name,
		PaymentCompleted.name, PaymentFailed.name,
		ReviewCreated.name,
		NotificationSent.name,
		MessageSent.name,
	}
}

type UserCreatedPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

type UserUpdatedPayload struct {
	UserID  string         `json:"userId"`
	Changes map[string]any `json:"changes"`
}

type UserDeletedPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type BookingCreatedPayload struct {
	BookingID string    `json:"bookingId"`
	UserID    string    `json:"userId"`
	ServiceID string    `json:"serviceId"`
	Date      time.Time `json:"date"`
}

type BookingUpdatedPayload struct {
	BookingID string `json:"bookingId"`
	UserID    string `json:"userId"`
	Status    string `json:"status"`
}

type BookingCancelledPayload struct {
	BookingID string `json:"bookingId"`
	UserID    string `json:"userId"`
	Reason    string `json:"reason,omitempty"`
}

type PaymentCompletedPayload struct {
	PaymentID string  `json:"paymentId"`
	UserID    string  `json:"userId"`
	Amount    float64 `json:"amount"`
	BookingID string  `json:"bookingId,omitempty"`
}

type PaymentFailedPayload struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

type ReviewCreatedPayload struct {
	ReviewID  string `json:"reviewId"`
	UserID    string `json:"userId"`
	ServiceID string `json:"serviceId"`
	Rating    int    `json:"rating"`
}

type NotificationSentPayload struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}

type MessageSentPayload struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	RoomID     string `json:"roomId"`
	Preview    string `json:"preview,omitempty"`
}
