package repository

import (
	"context"
	"time"

	"cadence/internal/models"

	"gorm.io/gorm"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	return r.db.WithContext(ctx).Omit("Service").Create(b).Error
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.WithContext(ctx).Preload("Service").Where("id = ?", id).First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id, status, reason string) error {
	updates := map[string]interface{}{"status": status}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	res := r.db.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatusBetween returns bookings in status dated within [from, to).
func (r *BookingRepository) ListByStatusBetween(ctx context.Context, status string, from, to time.Time) ([]models.Booking, error) {
	var list []models.Booking
	err := r.db.WithContext(ctx).Preload("Service").
		Where("status = ? AND date >= ? AND date < ?", status, from, to).
		Find(&list).Error
	return list, err
}

func (r *BookingRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).Where("created_at >= ? AND created_at < ?", from, to).Count(&n).Error
	return n, err
}

type ServiceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

func (r *ServiceRepository) GetByID(ctx context.Context, id string) (*models.Service, error) {
	var s models.Service
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, rv *models.Review) error {
	return r.db.WithContext(ctx).Omit("Service").Create(rv).Error
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*models.Review, error) {
	var rv models.Review
	err := r.db.WithContext(ctx).Preload("Service").Where("id = ?", id).First(&rv).Error
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *ReviewRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Review{}).Where("created_at >= ? AND created_at < ?", from, to).Count(&n).Error
	return n, err
}
