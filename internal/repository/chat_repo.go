package repository

import (
	"context"
	"sort"
	"time"

	"cadence/internal/models"

	"gorm.io/gorm"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// FindRoom looks the pair up in either order.
func (r *ChatRepository) FindRoom(ctx context.Context, a, b string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Where("pair_key = ?", models.PairKey(a, b)).First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// FindOrCreateRoom returns the pair's room, creating it with senderID first
// when none exists. A concurrent creator loses on the unique pair key and
// picks up the winner's row instead.
func (r *ChatRepository) FindOrCreateRoom(ctx context.Context, senderID, receiverID string) (*models.Room, error) {
	room, err := r.FindRoom(ctx, senderID, receiverID)
	if err == nil {
		return room, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	room = &models.Room{SenderID: senderID, ReceiverID: receiverID}
	createErr := r.db.WithContext(ctx).Create(room).Error
	if createErr == nil {
		return room, nil
	}
	if existing, err := r.FindRoom(ctx, senderID, receiverID); err == nil {
		return existing, nil
	}
	return nil, createErr
}

func (r *ChatRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns a page of the room's history, oldest first.
func (r *ChatRepository) ListMessages(ctx context.Context, roomID string, offset, limit int) ([]models.Message, error) {
	var list []models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&list).Error
	return list, err
}

// MarkRoomRead flags every message in the room addressed to receiverID as read.
func (r *ChatRepository) MarkRoomRead(ctx context.Context, roomID, receiverID string) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ? AND receiver_id = ? AND is_read = ?", roomID, receiverID, false).
		Update("is_read", true).Error
}

func (r *ChatRepository) UnreadMessages(ctx context.Context, roomID, receiverID string) ([]models.Message, error) {
	var list []models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND receiver_id = ? AND is_read = ?", roomID, receiverID, false).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// Conversations lists the user's rooms with the peer and the newest message,
// most recent activity first.
func (r *ChatRepository) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	db := r.db.WithContext(ctx)
	var rooms []models.Room
	if err := db.Where("sender_id = ? OR receiver_id = ?", userID, userID).Find(&rooms).Error; err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []models.Conversation{}, nil
	}
	peerIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		peerIDs = append(peerIDs, room.Peer(userID))
	}
	var peers []models.User
	if err := db.Where("id IN ?", peerIDs).Find(&peers).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*models.User, len(peers))
	for i := range peers {
		byID[peers[i].ID] = &peers[i]
	}

	out := make([]models.Conversation, 0, len(rooms))
	for _, room := range rooms {
		conv := models.Conversation{RoomID: room.ID, User: byID[room.Peer(userID)]}
		var last models.Message
		err := db.Where("room_id = ?", room.ID).Order("created_at DESC, id DESC").First(&last).Error
		switch {
		case err == nil:
			conv.LastMessage = &last
		case !IsNotFound(err):
			return nil, err
		}
		out = append(out, conv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i]).After(activity(out[j]))
	})
	return out, nil
}

func activity(c models.Conversation) (t time.Time) {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return t
}
