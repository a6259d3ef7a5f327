package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Notification struct {
	ID         string  `gorm:"primaryKey;size:36" json:"id"`
	ReceiverID string  `gorm:"size:36;not null;index" json:"receiver_id"`
	SenderID   *string `gorm:"size:36" json:"sender_id,omitempty"`
	Title      string  `gorm:"size:255" json:"title"`
	Body       string  `gorm:"type:text" json:"body"`
	Data       string  `gorm:"type:text" json:"data,omitempty"` // JSON payload
	Read       bool    `gorm:"not null;default:false" json:"read"`
	// SourceJobID is set when a queue job wrote the row; a retried attempt
	// finds it instead of inserting twice.
	SourceJobID *string        `gorm:"size:96;uniqueIndex" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
