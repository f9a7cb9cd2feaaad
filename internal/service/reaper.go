package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RoomReaper 定期關閉超過存活時間的房間
type RoomReaper struct {
	coordinator *Coordinator
	ttl         time.Duration
	interval    time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

func NewRoomReaper(coordinator *Coordinator, ttl, interval time.Duration) *RoomReaper {
	return &RoomReaper{
		coordinator: coordinator,
		ttl:         ttl,
		interval:    interval,
		now:         time.Now,
		log:         logrus.WithField("component", "reaper"),
	}
}

// Run 持續執行直到 ctx 結束
func (r *RoomReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep 執行一次清理
func (r *RoomReaper) Sweep(ctx context.Context) int {
	n, err := r.coordinator.ExpireRooms(ctx, r.now().Add(-r.ttl))
	if err != nil {
		r.log.WithError(err).Warn("room sweep failed")
		return 0
	}
	if n > 0 {
		r.log.WithField("closed", n).Info("expired rooms closed")
	}
	return n
}
