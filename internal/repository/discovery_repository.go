package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"mystery_web/internal/models"
	"mystery_web/internal/storage"
)

type discoveryRepository struct {
	db *storage.DB
}

func NewDiscoveryRepository(db *storage.DB) DiscoveryRepository {
	return &discoveryRepository{db: db}
}

func (r *discoveryRepository) InsertIfAbsent(ctx context.Context, rec models.DiscoveryRecord) (models.DiscoveryRecord, bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return models.DiscoveryRecord{}, false, fmt.Errorf("gorm: insert discovery %s/%d: %w", rec.RoomID, rec.ClueIndex, res.Error)
	}
	if res.RowsAffected == 1 {
		return rec, true, nil
	}

	var existing models.DiscoveryRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND clue_index = ?", rec.RoomID, rec.ClueIndex).
		First(&existing).Error
	if err != nil {
		return models.DiscoveryRecord{}, false, translateError(err)
	}
	return existing, false, nil
}

func (r *discoveryRepository) ListByRoom(ctx context.Context, roomID string) ([]models.DiscoveryRecord, error) {
	var records []models.DiscoveryRecord
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("clue_index ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list discoveries of room %s: %w", roomID, err)
	}
	return records, nil
}
