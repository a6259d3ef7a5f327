package service

import (
	"context"
	"strings"

	"cadence/internal/events"
	"cadence/internal/models"
)

type ReviewStore interface {
	Create(ctx context.Context, r *models.Review) error
}

type ReviewService struct {
	reviews  ReviewStore
	services ServiceLookup
	bus      *events.Bus
}

func NewReviewService(reviews ReviewStore, services ServiceLookup, bus *events.Bus) *ReviewService {
	return &ReviewService{reviews: reviews, services: services, bus: bus}
}

func (s *ReviewService) Create(ctx context.Context, userID, serviceID string, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	r := &models.Review{
		UserID:    userID,
		ServiceID: svc.ID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
	}
	if err := s.reviews.Create(ctx, r); err != nil {
		return nil, err
	}
	r.Service = *svc
	events.Emit(s.bus, ctx, events.ReviewCreated, events.ReviewCreatedPayload{
		ReviewID:  r.ID,
		UserID:    userID,
		ServiceID: svc.ID,
		Rating:    rating,
	})
	return r, nil
}
