package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"mystery_web/internal/models"
	"mystery_web/internal/storage"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db, err := storage.NewSQLiteDB(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepositories(db)
}

func seedRoom(t *testing.T, repos *Repositories, id, code string) *models.Room {
	t.Helper()
	room := &models.Room{
		ID:              id,
		Code:            code,
		Name:            "Gallery",
		Phase:           models.PhaseLobby,
		HostID:          "host",
		CaseID:          "midnight-gallery",
		MaxParticipants: 6,
	}
	require.NoError(t, repos.Room.Create(context.Background(), room))
	return room
}

func TestRoomRepository_OpenCodeUniqueness(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "ABC123")

	err := repos.Room.Create(ctx, &models.Room{ID: "r2", Code: "ABC123", Name: "x", Phase: models.PhaseLobby, HostID: "h", CaseID: "c", MaxParticipants: 6})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	ok, err := repos.Room.UpdatePhase(ctx, "r1", models.PhaseLobby, models.PhaseClosed, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	// 關閉後代碼可以重複使用
	seedRoom(t, repos, "r3", "ABC123")
	found, err := repos.Room.FindOpenByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "r3", found.ID)
}

func TestRoomRepository_UpdatePhaseIsCompareAndSet(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "AAAAAA")

	ok, err := repos.Room.UpdatePhase(ctx, "r1", models.PhaseLobby, models.PhasePlaying, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Room.UpdatePhase(ctx, "r1", models.PhaseLobby, models.PhasePlaying, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	room, err := repos.Room.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.PhasePlaying, room.Phase)
	assert.Nil(t, room.ClosedAt)
}

func TestRoomRepository_MarkSolvedOnce(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "AAAAAA")

	ok, err := repos.Room.MarkSolved(ctx, "r1", "alice", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repos.Room.MarkSolved(ctx, "r1", "bob", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	room, err := repos.Room.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "alice", room.SolvedBy)
	assert.NotNil(t, room.SolvedAt)
}

func TestRoomRepository_FindByIDMissing(t *testing.T) {
	repos := newTestRepos(t)
	_, err := repos.Room.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParticipantRepository_InsertIfAbsent(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "AAAAAA")

	first, inserted, err := repos.Participant.InsertIfAbsent(ctx, models.Participant{RoomID: "r1", UserID: "u1", DisplayName: "Ann", JoinedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, inserted)

	again, inserted, err := repos.Participant.InsertIfAbsent(ctx, models.Participant{RoomID: "r1", UserID: "u1", DisplayName: "Other", JoinedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Ann", again.DisplayName)

	count, err := repos.Participant.Count(ctx, "r1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	removed, err := repos.Participant.Delete(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repos.Participant.Delete(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	// 離開後可以重新加入
	_, inserted, err = repos.Participant.InsertIfAbsent(ctx, models.Participant{RoomID: "r1", UserID: "u1", DisplayName: "Ann", JoinedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestParticipantRepository_ListOrderedByJoin(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "AAAAAA")
	base := time.Now()
	for i, u := range []string{"c", "a", "b"} {
		_, _, err := repos.Participant.InsertIfAbsent(ctx, models.Participant{RoomID: "r1", UserID: u, DisplayName: u, JoinedAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	list, err := repos.Participant.ListByRoom(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{list[0].UserID, list[1].UserID, list[2].UserID})
}

func TestDiscoveryRepository_FirstWriterWins(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "AAAAAA")

	rec, inserted, err := repos.Discovery.InsertIfAbsent(ctx, models.DiscoveryRecord{RoomID: "r1", ClueIndex: 2, DiscoveredBy: "u1", DiscoveredAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, inserted)

	again, inserted, err := repos.Discovery.InsertIfAbsent(ctx, models.DiscoveryRecord{RoomID: "r1", ClueIndex: 2, DiscoveredBy: "u2", DiscoveredAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, rec.DiscoveredBy, again.DiscoveredBy)

	_, _, err = repos.Discovery.InsertIfAbsent(ctx, models.DiscoveryRecord{RoomID: "r1", ClueIndex: 0, DiscoveredBy: "u2", DiscoveredAt: time.Now()})
	require.NoError(t, err)

	list, err := repos.Discovery.ListByRoom(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].ClueIndex)
	assert.Equal(t, 2, list[1].ClueIndex)
}

func TestChatRepository_SequenceIsGapFree(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "AAAAAA")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := &models.ChatMessage{RoomID: "r1", AuthorID: "u", AuthorName: "U", Body: fmt.Sprintf("m%d", i), SentAt: time.Now()}
			errs <- repos.Chat.Append(ctx, msg)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tail, err := repos.Chat.Tail(ctx, "r1", 100)
	require.NoError(t, err)
	require.Len(t, tail, n)
	for i, m := range tail {
		assert.EqualValues(t, i+1, m.Sequence)
	}
}

func TestChatRepository_TailReturnsNewestAscending(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedRoom(t, repos, "r1", "AAAAAA")
	for i := 0; i < 5; i++ {
		require.NoError(t, repos.Chat.Append(ctx, &models.ChatMessage{RoomID: "r1", AuthorID: "u", AuthorName: "U", Body: "x", SentAt: time.Now()}))
	}

	tail, err := repos.Chat.Tail(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.EqualValues(t, 4, tail[0].Sequence)
	assert.EqualValues(t, 5, tail[1].Sequence)
}

func TestChatRepository_AppendMissingRoom(t *testing.T) {
	repos := newTestRepos(t)
	err := repos.Chat.Append(context.Background(), &models.ChatMessage{RoomID: "ghost", AuthorID: "u", AuthorName: "U", Body: "x", SentAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCaseRepository_UpsertAndDefault(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Case.Default(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	c := &models.Case{
		ID:       "b-case",
		Title:    "B",
		Solution: "the butler",
		Clues: []models.Clue{
			{Index: 1, Title: "second"},
			{Index: 0, Title: "first"},
		},
	}
	require.NoError(t, repos.Case.Upsert(ctx, c))
	require.NoError(t, repos.Case.Upsert(ctx, &models.Case{ID: "a-case", Title: "A", Solution: "x", Clues: []models.Clue{{Index: 0, Title: "only"}}}))

	got, err := repos.Case.FindByID(ctx, "b-case")
	require.NoError(t, err)
	require.Len(t, got.Clues, 2)
	assert.Equal(t, "first", got.Clues[0].Title)
	assert.Equal(t, "second", got.Clues[1].Title)

	def, err := repos.Case.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a-case", def.ID)

	// 再次匯入會取代線索
	require.NoError(t, repos.Case.Upsert(ctx, &models.Case{ID: "b-case", Title: "B2", Solution: "y", Clues: []models.Clue{{Index: 0, Title: "replaced"}}}))
	got, err = repos.Case.FindByID(ctx, "b-case")
	require.NoError(t, err)
	assert.Equal(t, "B2", got.Title)
	require.Len(t, got.Clues, 1)
	assert.Equal(t, "replaced", got.Clues[0].Title)
}
