package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
)

const maxDisplayNameRunes = 40

// ParticipantRegistry 管理房間成員
type ParticipantRegistry struct {
	repo repository.ParticipantRepository
	pub  Publisher
	now  func() time.Time
	log  *logrus.Entry
}

func NewParticipantRegistry(repo repository.ParticipantRepository, pub Publisher) *ParticipantRegistry {
	return &ParticipantRegistry{
		repo: repo,
		pub:  pub,
		now:  time.Now,
		log:  logrus.WithField("component", "registry"),
	}
}

// normalizeDisplayName 去除前後空白並截斷到 40 個字元
func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyDisplayName
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		name = strings.TrimSpace(string([]rune(name)[:maxDisplayNameRunes]))
	}
	return name, nil
}

// Join 加入房間。已是成員時回傳既有資料與 alreadyMember = true，不視為錯誤。
func (r *ParticipantRegistry) Join(ctx context.Context, room *models.Room, userID, displayName string) (models.Participant, bool, error) {
	name, err := normalizeDisplayName(displayName)
	if err != nil {
		return models.Participant{}, false, err
	}

	existing, err := r.repo.Find(ctx, room.ID, userID)
	if err == nil {
		return *existing, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.Participant{}, false, mapRepoError(err, "find participant")
	}

	count, err := r.repo.Count(ctx, room.ID)
	if err != nil {
		return models.Participant{}, false, mapRepoError(err, "count participants")
	}
	if room.MaxParticipants > 0 && count >= int64(room.MaxParticipants) {
		return models.Participant{}, false, fmt.Errorf("%w: %d/%d", ErrCapacity, count, room.MaxParticipants)
	}

	p, inserted, err := r.repo.InsertIfAbsent(ctx, models.Participant{
		RoomID:      room.ID,
		UserID:      userID,
		DisplayName: name,
		JoinedAt:    r.now().UTC(),
	})
	if err != nil {
		return models.Participant{}, false, mapRepoError(err, "insert participant")
	}
	if !inserted {
		return p, true, nil
	}

	r.pub.Publish(participantJoined(p))
	r.log.WithFields(logrus.Fields{"room_id": room.ID, "user_id": userID}).Info("participant joined")
	return p, false, nil
}

// Leave 離開房間，不是成員時回傳 false
func (r *ParticipantRegistry) Leave(ctx context.Context, roomID, userID string) (bool, error) {
	existing, err := r.repo.Find(ctx, roomID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapRepoError(err, "find participant")
	}

	removed, err := r.repo.Delete(ctx, roomID, userID)
	if err != nil {
		return false, mapRepoError(err, "delete participant")
	}
	if !removed {
		return false, nil
	}

	r.pub.Publish(participantLeft(*existing, r.now().UTC()))
	r.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("participant left")
	return true, nil
}

// List 依加入時間排序
func (r *ParticipantRegistry) List(ctx context.Context, roomID string) ([]models.Participant, error) {
	list, err := r.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err, "list participants")
	}
	return list, nil
}

// Member 回傳使用者在房間內的成員資料，不是成員時回傳 ErrNotMember
func (r *ParticipantRegistry) Member(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	p, err := r.repo.Find(ctx, roomID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, mapRepoError(err, "find participant")
	}
	return p, nil
}

func (r *ParticipantRegistry) Count(ctx context.Context, roomID string) (int64, error) {
	n, err := r.repo.Count(ctx, roomID)
	if err != nil {
		return 0, mapRepoError(err, "count participants")
	}
	return n, nil
}

// IsHost 主持人身分是房間的屬性，與成員資料無關
func (r *ParticipantRegistry) IsHost(room *models.Room, userID string) bool {
	return room != nil && userID != "" && room.HostID == userID
}
