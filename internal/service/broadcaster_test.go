package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, sub *Subscription) (SessionEvent, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sub.Next(ctx)
}

func TestBroadcaster_SequencePerRoom(t *testing.T) {
	b := NewBroadcaster(8)
	a := b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "a"})
	a2 := b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "a"})
	other := b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "b"})

	assert.EqualValues(t, 1, a.Seq)
	assert.EqualValues(t, 2, a2.Seq)
	assert.EqualValues(t, 1, other.Seq)
	assert.False(t, a.At.IsZero())
	assert.EqualValues(t, 2, b.LastSeq("a"))
	assert.EqualValues(t, 0, b.LastSeq("missing"))
}

func TestBroadcaster_FIFOAndNoReplay(t *testing.T) {
	b := NewBroadcaster(8)
	b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "r"})

	sub := b.Subscribe("r")
	defer sub.Close()
	for i := 0; i < 5; i++ {
		b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "r"})
	}

	for want := uint64(2); want <= 6; want++ {
		ev, err := next(t, sub)
		require.NoError(t, err)
		assert.Equal(t, want, ev.Seq)
	}
}

func TestBroadcaster_RoomIsolation(t *testing.T) {
	b := NewBroadcaster(8)
	subA := b.Subscribe("a")
	subB := b.Subscribe("b")
	defer subA.Close()
	defer subB.Close()

	b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "a"})

	assert.Len(t, drain(t, subA), 1)
	assert.Empty(t, drain(t, subB))
}

func TestBroadcaster_OverflowDropsOldestAndSignalsResync(t *testing.T) {
	b := NewBroadcaster(3)
	sub := b.Subscribe("r")
	defer sub.Close()

	// 沒有讀取者時發布也不會阻塞
	for i := 0; i < 10; i++ {
		b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "r"})
	}
	assert.Equal(t, 7, sub.Dropped())

	_, err := next(t, sub)
	assert.ErrorIs(t, err, ErrResyncRequired)

	var seqs []uint64
	for _, ev := range drain(t, sub) {
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []uint64{8, 9, 10}, seqs)
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe("r")
	b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "r"})
	assert.Equal(t, 1, b.SubscriberCount("r"))

	sub.Close()
	sub.Close()
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
	assert.Equal(t, 0, b.SubscriberCount("r"))

	_, err := next(t, sub)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	// 取消後的發布不會送達
	b.Publish(SessionEvent{Type: EventChatPosted, RoomID: "r"})
	_, err = next(t, sub)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestBroadcaster_NextHonoursContext(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe("r")
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcaster_NextWakesOnPublish(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe("r")
	defer sub.Close()

	got := make(chan SessionEvent, 1)
	go func() {
		ev, err := next(t, sub)
		if err == nil {
			got <- ev
		}
	}()
	time.Sleep(10 * time.Millisecond)
	b.Publish(SessionEvent{Type: EventPhaseChanged, RoomID: "r"})

	select {
	case ev := <-got:
		assert.Equal(t, EventPhaseChanged, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber was not woken")
	}
}

func TestBroadcaster_ForgetDrainsThenCloses(t *testing.T) {
	b := NewBroadcaster(8)
	sub := b.Subscribe("r")
	defer sub.Close()

	b.Publish(SessionEvent{Type: EventPhaseChanged, RoomID: "r"})
	b.Forget("r")
	assert.Equal(t, 0, b.SubscriberCount("r"))

	ev, err := next(t, sub)
	require.NoError(t, err)
	assert.Equal(t, EventPhaseChanged, ev.Type)

	_, err = next(t, sub)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}
