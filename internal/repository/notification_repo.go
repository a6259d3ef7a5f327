package repository

import (
	"context"

	"cadence/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) CreateMany(ctx context.Context, list []models.Notification) error {
	if len(list) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(list, 500).Error
}

// CreateOnce inserts n unless a row with the same SourceJobID exists, in
// which case that row is returned.
func (r *NotificationRepository) CreateOnce(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n.SourceJobID == nil {
		return n, r.Create(ctx, n)
	}
	if existing, err := r.getBySourceJobID(ctx, *n.SourceJobID); err == nil {
		return existing, nil
	} else if !IsNotFound(err) {
		return nil, err
	}
	createErr := r.Create(ctx, n)
	if createErr == nil {
		return n, nil
	}
	if existing, err := r.getBySourceJobID(ctx, *n.SourceJobID); err == nil {
		return existing, nil
	}
	return nil, createErr
}

func (r *NotificationRepository) getBySourceJobID(ctx context.Context, jobID string) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).Where("source_job_id = ?", jobID).First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) ListByReceiver(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.WithContext(ctx).Where("receiver_id = ?", userID).Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// MarkRead returns ErrNotFound when the user has no unread notification with that id.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND receiver_id = ? AND `read` = ?", id, userID, false).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
