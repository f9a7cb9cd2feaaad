package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"mystery_web/internal/models"
	"mystery_web/internal/storage"
)

type participantRepository struct {
	db *storage.DB
}

func NewParticipantRepository(db *storage.DB) ParticipantRepository {
	return &participantRepository{db: db}
}

// InsertIfAbsent 依賴 (room_id, user_id) 唯一索引，不做先讀後寫
func (r *participantRepository) InsertIfAbsent(ctx context.Context, p models.Participant) (models.Participant, bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return models.Participant{}, false, fmt.Errorf("gorm: insert participant %s/%s: %w", p.RoomID, p.UserID, res.Error)
	}
	if res.RowsAffected == 1 {
		return p, true, nil
	}

	existing, err := r.Find(ctx, p.RoomID, p.UserID)
	if err != nil {
		return models.Participant{}, false, err
	}
	return *existing, false, nil
}

func (r *participantRepository) Delete(ctx context.Context, roomID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.Participant{})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: delete participant %s/%s: %w", roomID, userID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *participantRepository) Find(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&p).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &p, nil
}

func (r *participantRepository) ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list participants of room %s: %w", roomID, err)
	}
	return participants, nil
}

func (r *participantRepository) Count(ctx context.Context, roomID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).Where("room_id = ?", roomID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count participants of room %s: %w", roomID, err)
	}
	return count, nil
}
