package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
)

// ClueDiscoveryLedger 記錄房間內哪些線索已被揭露
type ClueDiscoveryLedger struct {
	repo  repository.DiscoveryRepository
	cases repository.CaseRepository
	pub   Publisher
	now   func() time.Time
	log   *logrus.Entry
}

func NewClueDiscoveryLedger(repo repository.DiscoveryRepository, cases repository.CaseRepository, pub Publisher) *ClueDiscoveryLedger {
	return &ClueDiscoveryLedger{
		repo:  repo,
		cases: cases,
		pub:   pub,
		now:   time.Now,
		log:   logrus.WithField("component", "ledger"),
	}
}

func (l *ClueDiscoveryLedger) loadCase(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := l.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, mapRepoError(err, "case "+caseID)
	}
	return c, nil
}

// Discover 揭露線索。同一線索只有第一次呼叫會寫入並發出事件，其他呼叫得到 alreadyDiscovered = true。
func (l *ClueDiscoveryLedger) Discover(ctx context.Context, room *models.Room, clueIndex int, userID string) (Discovery, bool, error) {
	c, err := l.loadCase(ctx, room.CaseID)
	if err != nil {
		return Discovery{}, false, err
	}
	clue, ok := c.ClueAt(clueIndex)
	if !ok {
		return Discovery{}, false, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidClue, clueIndex, len(c.Clues))
	}

	rec, inserted, err := l.repo.InsertIfAbsent(ctx, models.DiscoveryRecord{
		RoomID:       room.ID,
		ClueIndex:    clueIndex,
		DiscoveredBy: userID,
		DiscoveredAt: l.now().UTC(),
	})
	if err != nil {
		return Discovery{}, false, mapRepoError(err, "insert discovery")
	}

	d := Discovery{DiscoveryRecord: rec, Clue: clue}
	if !inserted {
		return d, true, nil
	}

	l.pub.Publish(clueDiscovered(d))
	l.log.WithFields(logrus.Fields{
		"room_id":    room.ID,
		"user_id":    userID,
		"clue_index": clueIndex,
	}).Info("clue discovered")
	return d, false, nil
}

// ListDiscovered 回傳遞增排序的線索索引
func (l *ClueDiscoveryLedger) ListDiscovered(ctx context.Context, roomID string) ([]int, error) {
	records, err := l.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err, "list discoveries")
	}
	indices := make([]int, len(records))
	for i, rec := range records {
		indices[i] = rec.ClueIndex
	}
	return indices, nil
}

// Records 回傳揭露紀錄與對應的線索內容
func (l *ClueDiscoveryLedger) Records(ctx context.Context, room *models.Room, c *models.Case) ([]Discovery, error) {
	records, err := l.repo.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, mapRepoError(err, "list discoveries")
	}
	out := make([]Discovery, 0, len(records))
	for _, rec := range records {
		clue, ok := c.ClueAt(rec.ClueIndex)
		if !ok {
			// 案件內容被改短了，略過已不存在的線索
			l.log.WithFields(logrus.Fields{"room_id": room.ID, "clue_index": rec.ClueIndex}).Warn("discovery refers to missing clue")
			continue
		}
		out = append(out, Discovery{DiscoveryRecord: rec, Clue: clue})
	}
	return out, nil
}
