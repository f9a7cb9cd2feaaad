package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
	"mystery_web/internal/repository/memory"
)

const testSolution = "The curator hid the painting in the office safe."

func testCase() *models.Case {
	return &models.Case{
		ID:          "gallery",
		Title:       "The Midnight Gallery",
		Description: "A painting vanished.",
		Victim:      "Azure Dawn",
		Solution:    testSolution,
		Keywords:    []string{"curator", "safe"},
		Clues: []models.Clue{
			{Index: 0, Title: "Security Log", Body: "Disarmed at 23:47", Category: "document"},
			{Index: 1, Title: "Footage", Body: "Grey coat", Category: "video"},
			{Index: 2, Title: "Frame", Body: "Unhooked", Category: "physical"},
		},
	}
}

type fixture struct {
	repos *repository.Repositories
	b     *Broadcaster
	c     *Coordinator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	require.NoError(t, repos.Case.Upsert(context.Background(), testCase()))
	b := NewBroadcaster(256)
	return &fixture{repos: repos, b: b, c: NewCoordinator(repos, b, opts)}
}

func (f *fixture) createRoom(t *testing.T, hostID string, max int) *models.Room {
	t.Helper()
	room, _, err := f.c.CreateRoom(context.Background(), CreateRoomRequest{
		Name:            "Friday night",
		MaxParticipants: max,
		HostID:          hostID,
		HostName:        "Host " + hostID,
	})
	require.NoError(t, err)
	return room
}

func (f *fixture) join(t *testing.T, roomID, userID string) {
	t.Helper()
	_, _, err := f.c.Join(context.Background(), roomID, userID, "Player "+userID)
	require.NoError(t, err)
}

func (f *fixture) playingRoom(t *testing.T, hostID string, members ...string) *models.Room {
	t.Helper()
	room := f.createRoom(t, hostID, 0)
	for _, m := range members {
		f.join(t, room.ID, m)
	}
	_, err := f.c.StartGame(context.Background(), room.ID, hostID)
	require.NoError(t, err)
	return room
}

// drain 讀出目前佇列中的所有事件
func drain(t *testing.T, sub *Subscription) []SessionEvent {
	t.Helper()
	var events []SessionEvent
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		ev, err := sub.Next(ctx)
		cancel()
		if err != nil {
			return events
		}
		events = append(events, ev)
	}
}

func countType(events []SessionEvent, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
