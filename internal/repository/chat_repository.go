package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mystery_web/internal/models"
	"mystery_web/internal/storage"
)

type chatRepository struct {
	db *storage.DB
}

func NewChatRepository(db *storage.DB) ChatRepository {
	return &chatRepository{db: db}
}

// Append 在同一個交易內遞增 rooms.chat_seq 並寫入訊息；UPDATE 取得的列鎖保證序號不重複、不跳號
func (r *chatRepository) Append(ctx context.Context, msg *models.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Room{}).
			Where("id = ?", msg.RoomID).
			UpdateColumn("chat_seq", gorm.Expr("chat_seq + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("gorm: bump chat sequence of room %s: %w", msg.RoomID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var room models.Room
		if err := tx.Select("chat_seq").First(&room, "id = ?", msg.RoomID).Error; err != nil {
			return translateError(err)
		}
		msg.Sequence = room.ChatSeq

		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("gorm: insert chat message %s/%d: %w", msg.RoomID, msg.Sequence, translateError(err))
		}
		return nil
	})
}

func (r *chatRepository) Tail(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sequence DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: tail chat of room %s: %w", roomID, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
