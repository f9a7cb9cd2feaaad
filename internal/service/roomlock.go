package service

import (
	"context"
	"sync"
)

// roomLocks 為每個房間提供互斥。用容量為 1 的 channel 當鎖，等待時可以被 context 取消。
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	ch   chan struct{}
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

func (l *roomLocks) acquire(ctx context.Context, roomID string) (func(), error) {
	l.mu.Lock()
	rl, ok := l.locks[roomID]
	if !ok {
		rl = &roomLock{ch: make(chan struct{}, 1)}
		l.locks[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(roomID, rl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-rl.ch
			l.drop(roomID, rl)
		})
	}, nil
}

func (l *roomLocks) drop(roomID string, rl *roomLock) {
	l.mu.Lock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, roomID)
	}
	l.mu.Unlock()
}

// size 只用於測試
func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
