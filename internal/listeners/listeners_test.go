package listeners

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/queue"
	"cadence/internal/repository"
	"cadence/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type users map[string]*models.User

func (u users) GetByID(ctx context.Context, id string) (*models.User, error) {
	if v, ok := u[id]; ok {
		return v, nil
	}
	return nil, repository.ErrNotFound
}

type bookings map[string]*models.Booking

func (b bookings) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if v, ok := b[id]; ok {
		return v, nil
	}
	if id == "broken" {
		return nil, errors.New("connection reset")
	}
	return nil, repository.ErrNotFound
}

type reviews map[string]*models.Review

func (r reviews) GetByID(ctx context.Context, id string) (*models.Review, error) {
	if v, ok := r[id]; ok {
		return v, nil
	}
	return nil, repository.ErrNotFound
}

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	frames map[string][]any
}

func (p *fakePresence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePresence) SendToUser(userID string, frame any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.frames[userID] = append(p.frames[userID], frame)
	return true
}

type harness struct {
	bus      *events.Bus
	broker   *queue.MemoryBroker
	presence *fakePresence
	logs     *observer.ObservedLogs
}

func setup(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	h := &harness{
		bus:      events.NewBus(logger),
		broker:   queue.NewMemoryBroker(),
		presence: &fakePresence{online: map[string]bool{"online": true}, frames: map[string][]any{}},
		logs:     logs,
	}
	date := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	RegisterAll(h.bus, Deps{
		Queue: queue.New(h.broker, nil, logger),
		Users: users{
			"u1":     {ID: "u1", Name: "Ann", Email: "ann@example.com"},
			"online": {ID: "online", Email: "on@example.com"},
		},
		Bookings: bookings{
			"b1": {ID: "b1", UserID: "u1", Date: date, Location: "Main St", Status: domain.BookingPending, Service: models.Service{Name: "Haircut"}},
		},
		Reviews:  reviews{"r1": {ID: "r1", UserID: "u1", Rating: 5, Service: models.Service{Name: "Haircut"}}},
		Presence: h.presence,
		Logger:   logger,
	})
	return h
}

// jobs claims everything waiting on name.
func (h *harness) jobs(t *testing.T, name string) []*queue.Job {
	t.Helper()
	h.bus.Wait()
	var out []*queue.Job
	for {
		job, err := h.broker.Claim(context.Background(), name, time.Minute)
		require.NoError(t, err)
		if job == nil {
			return out
		}
		out = append(out, job)
	}
}

func decode[T any](t *testing.T, job *queue.Job) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(job.Data, &v))
	return v
}

func TestRegisterAllCoversCatalogue(t *testing.T) {
	h := setup(t)
	for _, name := range events.Names() {
		assert.Equal(t, 1, h.bus.ListenerCount(name), name)
	}
}

func TestUserCreatedQueuesWelcomeEmail(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.UserCreated, events.UserCreatedPayload{UserID: "u1", Email: "ann@example.com", Name: "Ann"})

	emails := h.jobs(t, queue.QueueEmail)
	require.Len(t, emails, 1)
	mail := decode[queue.EmailJob](t, emails[0])
	assert.Equal(t, "ann@example.com", mail.To)
	assert.Equal(t, "Welcome to Cadence!", mail.Subject)
	assert.Contains(t, mail.HTML, "Hi Ann,")
	assert.Equal(t, queue.JobSendEmail, emails[0].Name)
	assert.Equal(t, 3, emails[0].Opts.Attempts)
}

func TestUserUpdatedOnlyLogs(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.UserUpdated, events.UserUpdatedPayload{UserID: "u1", Changes: map[string]any{"name": "A"}})
	assert.Empty(t, h.jobs(t, queue.QueueEmail))
	assert.Equal(t, 1, h.logs.FilterMessage("user updated").Len())
}

func TestUserDeletedQueuesEmail(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.UserDeleted, events.UserDeletedPayload{UserID: "gone", Email: "gone@example.com"})
	emails := h.jobs(t, queue.QueueEmail)
	require.Len(t, emails, 1)
	assert.Equal(t, "Account Deletion Confirmation", decode[queue.EmailJob](t, emails[0]).Subject)
}

func TestBookingCreated(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.BookingCreated, events.BookingCreatedPayload{BookingID: "b1", UserID: "u1", ServiceID: "s1"})

	emails := h.jobs(t, queue.QueueEmail)
	require.Len(t, emails, 1)
	mail := decode[queue.EmailJob](t, emails[0])
	assert.Equal(t, "Booking Confirmation - Haircut", mail.Subject)
	assert.Contains(t, mail.HTML, "Main St")

	notes := h.jobs(t, queue.QueueNotification)
	require.Len(t, notes, 1)
	n := decode[queue.NotificationJob](t, notes[0])
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, "Booking Confirmed", n.Title)
	assert.Equal(t, "Your booking for Haircut on Jun 1, 2024 is confirmed.", n.Body)
	assert.Equal(t, "b1", n.Data["bookingId"])
}

func TestBookingUpdatedEmailsOnlyImportantStatuses(t *testing.T) {
	tests := []struct {
		status string
		emails int
	}{
		{domain.BookingPending, 0},
		{domain.BookingConfirmed, 1},
		{domain.BookingCompleted, 1},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			h := setup(t)
			events.Emit(h.bus, context.Background(), events.BookingUpdated, events.BookingUpdatedPayload{BookingID: "b1", UserID: "u1", Status: tt.status})
			assert.Len(t, h.jobs(t, queue.QueueEmail), tt.emails)
			notes := h.jobs(t, queue.QueueNotification)
			require.Len(t, notes, 1)
			assert.Equal(t, "Your booking for Haircut is now "+tt.status, decode[queue.NotificationJob](t, notes[0]).Body)
		})
	}
}

func TestBookingCancelledUsesReason(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.BookingCancelled, events.BookingCancelledPayload{BookingID: "b1", UserID: "u1", Reason: "Provider unavailable"})
	events.Emit(h.bus, context.Background(), events.BookingCancelled, events.BookingCancelledPayload{BookingID: "b1", UserID: "u1"})

	assert.Len(t, h.jobs(t, queue.QueueEmail), 2)
	notes := h.jobs(t, queue.QueueNotification)
	require.Len(t, notes, 2)
	bodies := []string{decode[queue.NotificationJob](t, notes[0]).Body, decode[queue.NotificationJob](t, notes[1]).Body}
	assert.ElementsMatch(t, []string{
		"Provider unavailable",
		"Your booking for Haircut on Jun 1, 2024 has been cancelled.",
	}, bodies)
}

func TestMissingEntitiesAreSkipped(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.BookingCreated, events.BookingCreatedPayload{BookingID: "nope", UserID: "u1"})
	events.Emit(h.bus, context.Background(), events.BookingUpdated, events.BookingUpdatedPayload{BookingID: "b1", UserID: "nobody"})
	events.Emit(h.bus, context.Background(), events.PaymentFailed, events.PaymentFailedPayload{UserID: "nobody"})
	events.Emit(h.bus, context.Background(), events.ReviewCreated, events.ReviewCreatedPayload{ReviewID: "nope", UserID: "u1"})

	assert.Empty(t, h.jobs(t, queue.QueueEmail))
	assert.Empty(t, h.jobs(t, queue.QueueNotification))
	assert.Zero(t, h.logs.FilterMessage("listener failed").Len())
}

func TestLookupErrorIsLoggedByBus(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.BookingCreated, events.BookingCreatedPayload{BookingID: "broken", UserID: "u1"})
	h.bus.Wait()
	assert.Equal(t, 1, h.logs.FilterMessage("listener failed").Len())
}

func TestPaymentCompleted(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.PaymentCompleted, events.PaymentCompletedPayload{PaymentID: "p1", UserID: "u1", Amount: 42.5, BookingID: "b1"})

	emails := h.jobs(t, queue.QueueEmail)
	require.Len(t, emails, 1)
	mail := decode[queue.EmailJob](t, emails[0])
	assert.Equal(t, "Payment Successful", mail.Subject)
	assert.Contains(t, mail.HTML, "$42.50")
	assert.Contains(t, mail.HTML, "Haircut")

	notes := h.jobs(t, queue.QueueNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, "Your payment of $42.50 was successful.", decode[queue.NotificationJob](t, notes[0]).Body)
}

func TestPaymentFailed(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.PaymentFailed, events.PaymentFailedPayload{UserID: "u1", Amount: 10, Reason: "card declined"})
	assert.Len(t, h.jobs(t, queue.QueueEmail), 1)
	notes := h.jobs(t, queue.QueueNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, "Payment failed: card declined", decode[queue.NotificationJob](t, notes[0]).Body)
}

func TestReviewCreated(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.ReviewCreated, events.ReviewCreatedPayload{ReviewID: "r1", UserID: "u1", Rating: 5})
	notes := h.jobs(t, queue.QueueNotification)
	require.Len(t, notes, 1)
	n := decode[queue.NotificationJob](t, notes[0])
	assert.Equal(t, "Thank You for Your Review!", n.Title)
	assert.Equal(t, "5", n.Data["rating"])
}

func TestMessageSentNotifiesOnlyOfflineReceivers(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.MessageSent, events.MessageSentPayload{MessageID: "m1", SenderID: "u1", ReceiverID: "online", RoomID: "r", Preview: "hi"})
	events.Emit(h.bus, context.Background(), events.MessageSent, events.MessageSentPayload{MessageID: "m2", SenderID: "online", ReceiverID: "u1", RoomID: "r", Preview: "hello"})

	notes := h.jobs(t, queue.QueueNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, "message:m2", notes[0].ID)
	n := decode[queue.NotificationJob](t, notes[0])
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, "online", n.SenderID)
	assert.Equal(t, "New message", n.Title)
	assert.Equal(t, "hello", n.Body)
}

func TestNotificationSentPushesFrame(t *testing.T) {
	h := setup(t)
	events.Emit(h.bus, context.Background(), events.NotificationSent, events.NotificationSentPayload{NotificationID: "n1", UserID: "online", Title: "Hi", Body: "there"})
	events.Emit(h.bus, context.Background(), events.NotificationSent, events.NotificationSentPayload{NotificationID: "n2", UserID: "u1", Title: "Hi"})
	h.bus.Wait()

	h.presence.mu.Lock()
	defer h.presence.mu.Unlock()
	require.Len(t, h.presence.frames["online"], 1)
	data, err := json.Marshal(h.presence.frames["online"][0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"notification","data":{"id":"n1","title":"Hi","body":"there"}}`, string(data))
	assert.Empty(t, h.presence.frames["u1"])
}

func TestRealtimeListenersNeedPresence(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	RegisterAll(bus, Deps{Queue: queue.New(queue.NewMemoryBroker(), nil, zap.NewNop()), Logger: zap.NewNop()})
	assert.Zero(t, bus.ListenerCount(events.MessageSent.Name()))
	assert.Equal(t, 1, bus.ListenerCount(events.UserCreated.Name()))
}

var _ Presence = (*ws.Presence)(nil)
