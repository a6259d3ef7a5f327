package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cadence/internal/models"
	"cadence/internal/repository"
	"cadence/internal/service"

	"github.com/stretchr/testify/mock"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, mail Mail) (string, error) {
	args := m.Called(ctx, mail)
	return args.String(0), args.Error(1)
}

type mockPusher struct{ mock.Mock }

func (m *mockPusher) Send(ctx context.Context, token string, p service.Push) error {
	return m.Called(ctx, token, p).Error(0)
}

type memNotifications struct {
	mu   sync.Mutex
	rows []*models.Notification
}

func (s *memNotifications) CreateOnce(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.SourceJobID != nil && n.SourceJobID != nil && *r.SourceJobID == *n.SourceJobID {
			return r, nil
		}
	}
	n.ID = fmt.Sprintf("n%d", len(s.rows)+1)
	s.rows = append(s.rows, n)
	return n, nil
}

func (s *memNotifications) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memUsers struct {
	mu      sync.Mutex
	users   map[string]*models.User
	cleared []string
	count   int64
}

func (s *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) ClearFCMToken(ctx context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok && u.FCMToken == token {
		u.FCMToken = ""
		s.cleared = append(s.cleared, id)
	}
	return nil
}

func (s *memUsers) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return s.count, nil
}

type memBookings struct {
	list  []models.Booking
	count int64
	from  time.Time
	to    time.Time
}

func (s *memBookings) ListByStatusBetween(ctx context.Context, status string, from, to time.Time) ([]models.Booking, error) {
	s.from, s.to = from, to
	var out []models.Booking
	for _, b := range s.list {
		if b.Status == status && !b.Date.Before(from) && b.Date.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBookings) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return s.count, nil
}

type countFn func(ctx context.Context, from, to time.Time) (int64, error)

func (f countFn) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return f(ctx, from, to)
}

type fakeImages struct {
	source, folder, transformation string
	err                            error
}

func (f *fakeImages) TransformFromURL(ctx context.Context, sourceURL, folder, publicID, transformation string) (string, error) {
	f.source, f.folder, f.transformation = sourceURL, folder, transformation
	if f.err != nil {
		return "", f.err
	}
	return "https://res.cloudinary.com/demo/image/upload/" + transformation + "/" + publicID, nil
}
