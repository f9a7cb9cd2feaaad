package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrResyncRequired 表示訂閱者落後，已有事件被丟棄，必須重新取得 Snapshot
	ErrResyncRequired = errors.New("subscription lagged: resync required")
	// ErrSubscriptionClosed 表示訂閱已結束
	ErrSubscriptionClosed = errors.New("subscription closed")
)

const DefaultSubscriberQueue = 64

// Broadcaster 管理每個房間的訂閱表並分派 SessionEvent
type Broadcaster struct {
	mu        sync.Mutex
	topics    map[string]*topic // roomID -> topic
	queueSize int
	now       func() time.Time
	log       *logrus.Entry
}

type topic struct {
	seq  uint64
	subs map[*Subscription]struct{}
}

func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultSubscriberQueue
	}
	return &Broadcaster{
		topics:    make(map[string]*topic),
		queueSize: queueSize,
		now:       time.Now,
		log:       logrus.WithField("component", "broadcaster"),
	}
}

func (b *Broadcaster) topicLocked(roomID string) *topic {
	t, ok := b.topics[roomID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		b.topics[roomID] = t
	}
	return t
}

// Subscribe 從此刻起接收房間的事件，不重播歷史
func (b *Broadcaster) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		roomID: roomID,
		b:      b,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.topicLocked(roomID).subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish 為事件蓋上房間序號並放入每個訂閱者的佇列，不會阻塞
func (b *Broadcaster) Publish(event SessionEvent) SessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(event.RoomID)
	t.seq++
	event.Seq = t.seq
	if event.At.IsZero() {
		event.At = b.now()
	}
	for sub := range t.subs {
		if sub.enqueue(event, b.queueSize) {
			b.log.WithFields(logrus.Fields{
				"room_id": event.RoomID,
				"seq":     event.Seq,
			}).Warn("subscriber queue overflow, dropped oldest event")
		}
	}
	return event
}

// Unsubscribe 可重複呼叫
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if t, ok := b.topics[sub.roomID]; ok {
		delete(t.subs, sub)
	}
	b.mu.Unlock()
	sub.release()
}

// LastSeq 回傳房間最後發布事件的序號，沒有事件時為 0
func (b *Broadcaster) LastSeq(roomID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[roomID]; ok {
		return t.seq
	}
	return 0
}

func (b *Broadcaster) SubscriberCount(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[roomID]; ok {
		return len(t.subs)
	}
	return 0
}

// Forget 移除已關閉房間的 topic。訂閱者仍可讀完佇列中的事件，之後收到 ErrSubscriptionClosed。
func (b *Broadcaster) Forget(roomID string) {
	b.mu.Lock()
	t, ok := b.topics[roomID]
	delete(b.topics, roomID)
	b.mu.Unlock()
	if !ok {
		return
	}
	for sub := range t.subs {
		sub.end()
	}
}

// Subscription 是單一訂閱者的有界佇列，滿了就丟棄最舊的事件
type Subscription struct {
	roomID string
	b      *Broadcaster

	mu      sync.Mutex
	queue   []SessionEvent
	lagged  bool
	ended   bool
	dropped int

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) RoomID() string { return s.roomID }

// enqueue 回傳是否丟棄了事件
func (s *Subscription) enqueue(event SessionEvent, limit int) bool {
	s.mu.Lock()
	if s.ended || s.isClosed() {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if len(s.queue) >= limit {
		s.queue = s.queue[1:]
		s.lagged = true
		s.dropped++
		dropped = true
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	s.signal()
	return dropped
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Next 等待下一個事件。落後時先回傳一次 ErrResyncRequired，之後繼續傳遞保留下來的較新事件。
func (s *Subscription) Next(ctx context.Context) (SessionEvent, error) {
	for {
		s.mu.Lock()
		if s.isClosed() {
			s.mu.Unlock()
			return SessionEvent{}, ErrSubscriptionClosed
		}
		if s.lagged {
			s.lagged = false
			s.mu.Unlock()
			return SessionEvent{}, ErrResyncRequired
		}
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue[0] = SessionEvent{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, nil
		}
		ended := s.ended
		s.mu.Unlock()
		if ended {
			return SessionEvent{}, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-s.done:
			return SessionEvent{}, ErrSubscriptionClosed
		case <-ctx.Done():
			return SessionEvent{}, ctx.Err()
		}
	}
}

// Dropped 回傳累計被丟棄的事件數
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close 取消訂閱並釋放佇列，可重複呼叫
func (s *Subscription) Close() {
	s.b.Unsubscribe(s)
}

func (s *Subscription) release() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.queue = nil
		close(s.done)
		s.mu.Unlock()
	})
}

func (s *Subscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}
