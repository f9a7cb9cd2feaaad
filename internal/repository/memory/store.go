// Package memory 提供 repository 介面的行程內實作，適合單機開發與測試。
// 所有資料在行程結束後消失。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
)

// Store 以單一互斥鎖保護全部資料，模擬資料庫的唯一約束與交易
type Store struct {
	mu sync.RWMutex

	rooms        map[string]*models.Room
	participants map[string][]models.Participant // room id -> 依加入順序
	discoveries  map[string]map[int]models.DiscoveryRecord
	messages     map[string][]models.ChatMessage
	cases        map[string]*models.Case

	nextID uint
}

func NewStore() *Store {
	return &Store{
		rooms:        make(map[string]*models.Room),
		participants: make(map[string][]models.Participant),
		discoveries:  make(map[string]map[int]models.DiscoveryRecord),
		messages:     make(map[string][]models.ChatMessage),
		cases:        make(map[string]*models.Case),
	}
}

// Repositories 回傳共用同一份資料的 repository 集合
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Room:        &roomRepo{s},
		Participant: &participantRepo{s},
		Discovery:   &discoveryRepo{s},
		Chat:        &chatRepo{s},
		Case:        &caseRepo{s},
	}
}

// NewRepositories 建立一個全新的記憶體 store
func NewRepositories() *repository.Repositories {
	return NewStore().Repositories()
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

type roomRepo struct{ s *Store }

func (r *roomRepo) Create(ctx context.Context, room *models.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[room.ID]; ok {
		return repository.ErrDuplicateEntry
	}
	for _, existing := range r.s.rooms {
		if existing.Code == room.Code && existing.Phase != models.PhaseClosed {
			return repository.ErrDuplicateEntry
		}
	}
	now := time.Now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	stored := *room
	r.s.rooms[room.ID] = &stored
	return nil
}

func (r *roomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *roomRepo) FindOpenByCode(ctx context.Context, code string) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, room := range r.s.rooms {
		if room.Code == code && room.Phase != models.PhaseClosed {
			cp := *room
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *roomRepo) UpdatePhase(ctx context.Context, id string, from, to models.Phase, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok || room.Phase != from {
		return false, nil
	}
	room.Phase = to
	room.UpdatedAt = at
	if to == models.PhaseClosed {
		closedAt := at
		room.ClosedAt = &closedAt
	}
	return true, nil
}

func (r *roomRepo) MarkSolved(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok || room.SolvedBy != "" {
		return false, nil
	}
	solvedAt := at
	room.SolvedBy = userID
	room.SolvedAt = &solvedAt
	room.UpdatedAt = at
	return true, nil
}

func (r *roomRepo) FindExpired(ctx context.Context, createdBefore time.Time, limit int) ([]models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var expired []models.Room
	for _, room := range r.s.rooms {
		if room.Phase != models.PhaseClosed && room.CreatedAt.Before(createdBefore) {
			expired = append(expired, *room)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

type participantRepo struct{ s *Store }

func (r *participantRepo) InsertIfAbsent(ctx context.Context, p models.Participant) (models.Participant, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Participant{}, false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.participants[p.RoomID] {
		if existing.UserID == p.UserID {
			return existing, false, nil
		}
	}
	p.ID = r.s.id()
	r.s.participants[p.RoomID] = append(r.s.participants[p.RoomID], p)
	return p, true, nil
}

func (r *participantRepo) Delete(ctx context.Context, roomID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := r.s.participants[roomID]
	for i, p := range list {
		if p.UserID == userID {
			r.s.participants[roomID] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *participantRepo) Find(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.participants[roomID] {
		if p.UserID == userID {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *participantRepo) ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := append([]models.Participant(nil), r.s.participants[roomID]...)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list, nil
}

func (r *participantRepo) Count(ctx context.Context, roomID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.participants[roomID])), nil
}

type discoveryRepo struct{ s *Store }

func (r *discoveryRepo) InsertIfAbsent(ctx context.Context, rec models.DiscoveryRecord) (models.DiscoveryRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.DiscoveryRecord{}, false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	byIndex, ok := r.s.discoveries[rec.RoomID]
	if !ok {
		byIndex = make(map[int]models.DiscoveryRecord)
		r.s.discoveries[rec.RoomID] = byIndex
	}
	if existing, ok := byIndex[rec.ClueIndex]; ok {
		return existing, false, nil
	}
	rec.ID = r.s.id()
	byIndex[rec.ClueIndex] = rec
	return rec, true, nil
}

func (r *discoveryRepo) ListByRoom(ctx context.Context, roomID string) ([]models.DiscoveryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := make([]models.DiscoveryRecord, 0, len(r.s.discoveries[roomID]))
	for _, rec := range r.s.discoveries[roomID] {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ClueIndex < records[j].ClueIndex })
	return records, nil
}

type chatRepo struct{ s *Store }

func (r *chatRepo) Append(ctx context.Context, msg *models.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[msg.RoomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.ChatSeq++
	msg.ID = r.s.id()
	msg.Sequence = room.ChatSeq
	r.s.messages[msg.RoomID] = append(r.s.messages[msg.RoomID], *msg)
	return nil
}

func (r *chatRepo) Tail(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := r.s.messages[roomID]
	start := 0
	if limit >= 0 && len(all) > limit {
		start = len(all) - limit
	}
	return append([]models.ChatMessage(nil), all[start:]...), nil
}

type caseRepo struct{ s *Store }

func (r *caseRepo) FindByID(ctx context.Context, id string) (*models.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.cases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyCase(c), nil
}

func (r *caseRepo) Default(ctx context.Context) (*models.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var first *models.Case
	for _, c := range r.s.cases {
		if first == nil || c.ID < first.ID {
			first = c
		}
	}
	if first == nil {
		return nil, repository.ErrNotFound
	}
	return copyCase(first), nil
}

func (r *caseRepo) Upsert(ctx context.Context, c *models.Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := copyCase(c)
	sort.Slice(stored.Clues, func(i, j int) bool { return stored.Clues[i].Index < stored.Clues[j].Index })
	for i := range stored.Clues {
		stored.Clues[i].CaseID = stored.ID
	}
	r.s.cases[c.ID] = stored
	return nil
}

func copyCase(c *models.Case) *models.Case {
	cp := *c
	cp.Clues = append([]models.Clue(nil), c.Clues...)
	return &cp
}
