package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mystery_web/internal/models"
	"mystery_web/internal/storage"
)

type roomRepository struct {
	db *storage.DB
}

func NewRoomRepository(db *storage.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		if errors.Is(translateError(err), ErrDuplicateEntry) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (code: %s): %w", room.Code, err)
	}
	return nil
}

func (r *roomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &room, nil
}

func (r *roomRepository) FindOpenByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Where("code = ? AND phase <> ?", code, models.PhaseClosed).
		First(&room).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &room, nil
}

func (r *roomRepository) UpdatePhase(ctx context.Context, id string, from, to models.Phase, at time.Time) (bool, error) {
	updates := map[string]interface{}{"phase": to, "updated_at": at}
	if to == models.PhaseClosed {
		updates["closed_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND phase = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("gorm: update room %s phase %s -> %s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *roomRepository) MarkSolved(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND solved_by = ''", id).
		Updates(map[string]interface{}{"solved_by": userID, "solved_at": at, "updated_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: mark room %s solved: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *roomRepository) FindExpired(ctx context.Context, createdBefore time.Time, limit int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).
		Where("phase <> ? AND created_at < ?", models.PhaseClosed, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find expired rooms: %w", err)
	}
	return rooms, nil
}
