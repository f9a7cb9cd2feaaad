package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
)

// RoomLifecycle 控制房間狀態 lobby -> playing -> closed
type RoomLifecycle struct {
	rooms    repository.RoomRepository
	registry *ParticipantRegistry
	pub      Publisher
	now      func() time.Time
	log      *logrus.Entry
}

func NewRoomLifecycle(rooms repository.RoomRepository, registry *ParticipantRegistry, pub Publisher) *RoomLifecycle {
	return &RoomLifecycle{
		rooms:    rooms,
		registry: registry,
		pub:      pub,
		now:      time.Now,
		log:      logrus.WithField("component", "lifecycle"),
	}
}

// Require 在房間狀態不屬於 phases 時回傳 ErrWrongPhase
func (l *RoomLifecycle) Require(room *models.Room, phases ...models.Phase) error {
	for _, p := range phases {
		if room.Phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: room is %s", ErrWrongPhase, room.Phase)
}

// Start 由主持人開始遊戲
func (l *RoomLifecycle) Start(ctx context.Context, room *models.Room, userID string) (*models.Room, error) {
	if !l.registry.IsHost(room, userID) {
		return nil, ErrNotHost
	}
	if err := l.Require(room, models.PhaseLobby); err != nil {
		return nil, err
	}
	count, err := l.registry.Count(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, ErrInsufficientParticipants
	}
	return l.transition(ctx, room, models.PhaseLobby, models.PhasePlaying, PhaseReasonHost)
}

// Close 由主持人結束遊戲
func (l *RoomLifecycle) Close(ctx context.Context, room *models.Room, userID string) (*models.Room, error) {
	if !l.registry.IsHost(room, userID) {
		return nil, ErrNotHost
	}
	if err := l.Require(room, models.PhasePlaying); err != nil {
		return nil, err
	}
	return l.transition(ctx, room, models.PhasePlaying, models.PhaseClosed, PhaseReasonHost)
}

// Expire 關閉逾時的房間，任何未關閉的狀態皆可
func (l *RoomLifecycle) Expire(ctx context.Context, room *models.Room) (*models.Room, error) {
	if room.Phase == models.PhaseClosed {
		return nil, fmt.Errorf("%w: room is already closed", ErrWrongPhase)
	}
	return l.transition(ctx, room, room.Phase, models.PhaseClosed, PhaseReasonExpired)
}

func (l *RoomLifecycle) transition(ctx context.Context, room *models.Room, from, to models.Phase, reason string) (*models.Room, error) {
	at := l.now().UTC()
	ok, err := l.rooms.UpdatePhase(ctx, room.ID, from, to, at)
	if err != nil {
		return nil, mapRepoError(err, "update phase")
	}
	if !ok {
		// 狀態已被其他寫入者改變
		return nil, fmt.Errorf("%w: room is no longer %s", ErrWrongPhase, from)
	}

	updated := *room
	updated.Phase = to
	updated.UpdatedAt = at
	if to == models.PhaseClosed {
		updated.ClosedAt = &at
	}

	l.pub.Publish(phaseChanged(room.ID, from, to, reason, at))
	l.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"from":    from,
		"to":      to,
		"reason":  reason,
	}).Info("room phase changed")
	return &updated, nil
}
