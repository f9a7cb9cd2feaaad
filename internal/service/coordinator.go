package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
)

const (
	DefaultStoreTimeout    = 3 * time.Second
	DefaultMaxParticipants = 6
	MaxParticipantsLimit   = 50

	maxRoomNameRunes = 100
	roomCodeAttempts = 10
	expireBatchSize  = 100
)

// Options 是 Coordinator 的可調參數，零值代表使用預設值
type Options struct {
	StoreTimeout           time.Duration
	DefaultMaxParticipants int
	ChatTailLimit          int
	MaxMessageLength       int
	Verifier               SolutionVerifier
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.DefaultMaxParticipants <= 0 {
		o.DefaultMaxParticipants = DefaultMaxParticipants
	}
	if o.DefaultMaxParticipants > MaxParticipantsLimit {
		o.DefaultMaxParticipants = MaxParticipantsLimit
	}
	if o.ChatTailLimit <= 0 {
		o.ChatTailLimit = DefaultChatTailLimit
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = DefaultMaxMessageLength
	}
	if o.Verifier == nil {
		o.Verifier = DefaultVerifier
	}
	return o
}

// Coordinator 串起各個元件：驗證指令、以房間為單位序列化寫入、發布事件並提供完整狀態查詢
type Coordinator struct {
	repos       *repository.Repositories
	broadcaster *Broadcaster

	registry  *ParticipantRegistry
	ledger    *ClueDiscoveryLedger
	chat      *ChatLog
	lifecycle *RoomLifecycle

	locks   *roomLocks
	opts    Options
	newCode func() (string, error)
	now     func() time.Time
	log     *logrus.Entry
}

func NewCoordinator(repos *repository.Repositories, broadcaster *Broadcaster, opts Options) *Coordinator {
	opts = opts.withDefaults()
	registry := NewParticipantRegistry(repos.Participant, broadcaster)
	return &Coordinator{
		repos:       repos,
		broadcaster: broadcaster,
		registry:    registry,
		ledger:      NewClueDiscoveryLedger(repos.Discovery, repos.Case, broadcaster),
		chat:        NewChatLog(repos.Chat, broadcaster, opts.MaxMessageLength, opts.ChatTailLimit),
		lifecycle:   NewRoomLifecycle(repos.Room, registry, broadcaster),
		locks:       newRoomLocks(),
		opts:        opts,
		newCode:     generateRoomCode,
		now:         time.Now,
		log:         logrus.WithField("component", "coordinator"),
	}
}

// withRoom 取得房間鎖並載入房間，fn 在鎖內以帶逾時的 context 執行
func (c *Coordinator) withRoom(ctx context.Context, roomID string, fn func(ctx context.Context, room *models.Room) error) error {
	lockCtx, cancelLock := context.WithTimeout(ctx, c.opts.StoreTimeout)
	unlock, err := c.locks.acquire(lockCtx, roomID)
	cancelLock()
	if err != nil {
		return mapRepoError(err, "acquire room lock")
	}
	defer unlock()

	opCtx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()

	room, err := c.repos.Room.FindByID(opCtx, roomID)
	if err != nil {
		return mapRepoError(err, "room "+roomID)
	}
	return fn(opCtx, room)
}

// withMember 同 withRoom，並要求使用者是房間成員
func (c *Coordinator) withMember(ctx context.Context, roomID, userID string, fn func(ctx context.Context, room *models.Room, member *models.Participant) error) error {
	return c.withRoom(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		member, err := c.registry.Member(ctx, room.ID, userID)
		if err != nil {
			return err
		}
		return fn(ctx, room, member)
	})
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.StoreTimeout)
}

type CreateRoomRequest struct {
	Name            string
	CaseID          string
	MaxParticipants int
	HostID          string
	HostName        string
}

func clampParticipants(n, def int) int {
	if n <= 0 {
		return def
	}
	if n > MaxParticipantsLimit {
		return MaxParticipantsLimit
	}
	return n
}

// CreateRoom 建立房間並讓主持人自動成為第一位成員
func (c *Coordinator) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, models.Participant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameRunes {
		return nil, models.Participant{}, ErrInvalidRoomName
	}
	hostName, err := normalizeDisplayName(req.HostName)
	if err != nil {
		return nil, models.Participant{}, err
	}

	opCtx, cancel := c.storeCtx(ctx)
	defer cancel()

	var caseRow *models.Case
	if req.CaseID == "" {
		caseRow, err = c.repos.Case.Default(opCtx)
	} else {
		caseRow, err = c.repos.Case.FindByID(opCtx, req.CaseID)
	}
	if err != nil {
		return nil, models.Participant{}, mapRepoError(err, "case "+req.CaseID)
	}

	room := &models.Room{
		ID:              uuid.NewString(),
		Name:            name,
		Phase:           models.PhaseLobby,
		HostID:          req.HostID,
		CaseID:          caseRow.ID,
		MaxParticipants: clampParticipants(req.MaxParticipants, c.opts.DefaultMaxParticipants),
	}

	created := false
	for attempt := 0; attempt < roomCodeAttempts && !created; attempt++ {
		code, err := c.newCode()
		if err != nil {
			return nil, models.Participant{}, fmt.Errorf("generate room code: %w", err)
		}
		room.Code = code
		err = c.repos.Room.Create(opCtx, room)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, repository.ErrDuplicateEntry):
			c.log.WithField("code", code).Debug("room code collision, retrying")
		default:
			return nil, models.Participant{}, mapRepoError(err, "create room")
		}
	}
	if !created {
		return nil, models.Participant{}, fmt.Errorf("%w: could not allocate a unique room code", ErrTransient)
	}

	var host models.Participant
	err = c.withRoom(ctx, room.ID, func(ctx context.Context, r *models.Room) error {
		var err error
		host, _, err = c.registry.Join(ctx, r, req.HostID, hostName)
		room = r
		return err
	})
	if err != nil {
		return nil, models.Participant{}, err
	}

	c.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"code":    room.Code,
		"user_id": req.HostID,
		"case_id": room.CaseID,
	}).Info("room created")
	return room, host, nil
}

// FindRoomByCode 以代碼查詢未關閉的房間，不分大小寫
func (c *Coordinator) FindRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	normalized, ok := NormalizeRoomCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: room code %q", ErrNotFound, code)
	}
	opCtx, cancel := c.storeCtx(ctx)
	defer cancel()

	room, err := c.repos.Room.FindOpenByCode(opCtx, normalized)
	if err != nil {
		return nil, mapRepoError(err, "room code "+normalized)
	}
	return room, nil
}

// RoomSummary 是加入前可見的房間資訊
type RoomSummary struct {
	Room         *models.Room         `json:"room"`
	Case         CaseSummary          `json:"case"`
	Participants []models.Participant `json:"participants"`
}

// Summary 回傳房間、案件摘要與成員名單
func (c *Coordinator) Summary(ctx context.Context, roomID string) (*RoomSummary, error) {
	var summary *RoomSummary
	err := c.withRoom(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		caseRow, err := c.repos.Case.FindByID(ctx, room.CaseID)
		if err != nil {
			return mapRepoError(err, "case "+room.CaseID)
		}
		participants, err := c.registry.List(ctx, room.ID)
		if err != nil {
			return err
		}
		summary = &RoomSummary{Room: room, Case: summarizeCase(caseRow), Participants: participants}
		return nil
	})
	return summary, err
}

// Join 加入房間，只允許在 lobby 或 playing 狀態
func (c *Coordinator) Join(ctx context.Context, roomID, userID, displayName string) (models.Participant, bool, error) {
	var (
		p       models.Participant
		already bool
	)
	err := c.withRoom(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		if err := c.lifecycle.Require(room, models.PhaseLobby, models.PhasePlaying); err != nil {
			return err
		}
		var err error
		p, already, err = c.registry.Join(ctx, room, userID, displayName)
		return err
	})
	return p, already, err
}

// Leave 任何狀態都可以離開
func (c *Coordinator) Leave(ctx context.Context, roomID, userID string) (bool, error) {
	var removed bool
	err := c.withRoom(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		var err error
		removed, err = c.registry.Leave(ctx, room.ID, userID)
		if room.Phase == models.PhaseClosed {
			c.broadcaster.Forget(room.ID)
		}
		return err
	})
	return removed, err
}

func (c *Coordinator) StartGame(ctx context.Context, roomID, userID string) (*models.Room, error) {
	var updated *models.Room
	err := c.withRoom(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		var err error
		updated, err = c.lifecycle.Start(ctx, room, userID)
		return err
	})
	return updated, err
}

// CloseRoom 由主持人關閉房間，之後移除該房間的廣播 topic
func (c *Coordinator) CloseRoom(ctx context.Context, roomID, userID string) (*models.Room, error) {
	var updated *models.Room
	err := c.withRoom(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		var err error
		updated, err = c.lifecycle.Close(ctx, room, userID)
		if err == nil {
			c.broadcaster.Forget(room.ID)
		}
		return err
	})
	return updated, err
}

// DiscoverClue 揭露線索，需要 playing 狀態與成員身分
func (c *Coordinator) DiscoverClue(ctx context.Context, roomID, userID string, clueIndex int) (Discovery, bool, error) {
	var (
		d       Discovery
		already bool
	)
	err := c.withMember(ctx, roomID, userID, func(ctx context.Context, room *models.Room, _ *models.Participant) error {
		if err := c.lifecycle.Require(room, models.PhasePlaying); err != nil {
			return err
		}
		var err error
		d, already, err = c.ledger.Discover(ctx, room, clueIndex, userID)
		return err
	})
	return d, already, err
}

// PostChat 發送聊天訊息，作者名稱取發送當下的成員顯示名稱
func (c *Coordinator) PostChat(ctx context.Context, roomID, userID, body string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := c.withMember(ctx, roomID, userID, func(ctx context.Context, room *models.Room, member *models.Participant) error {
		if err := c.lifecycle.Require(room, models.PhaseLobby, models.PhasePlaying); err != nil {
			return err
		}
		var err error
		msg, err = c.chat.Post(ctx, room.ID, userID, member.DisplayName, body)
		return err
	})
	return msg, err
}

// ChatTail 讀取最新的聊天紀錄，需要成員身分
func (c *Coordinator) ChatTail(ctx context.Context, roomID, userID string, limit int, ascending bool) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := c.withMember(ctx, roomID, userID, func(ctx context.Context, room *models.Room, _ *models.Participant) error {
		var err error
		messages, err = c.chat.Tail(ctx, room.ID, limit, ascending)
		return err
	})
	return messages, err
}

// SubmitSolution 檢查答案。第一個答對的人會標記案件破解，並發出一次 case_solved。
func (c *Coordinator) SubmitSolution(ctx context.Context, roomID, userID, guess string) (SolutionVerdict, error) {
	if strings.TrimSpace(guess) == "" {
		return SolutionVerdict{}, fmt.Errorf("%w: solution", ErrEmptyMessage)
	}
	var verdict SolutionVerdict
	err := c.withMember(ctx, roomID, userID, func(ctx context.Context, room *models.Room, member *models.Participant) error {
		if err := c.lifecycle.Require(room, models.PhasePlaying); err != nil {
			return err
		}
		caseRow, err := c.repos.Case.FindByID(ctx, room.CaseID)
		if err != nil {
			return mapRepoError(err, "case "+room.CaseID)
		}

		verdict = SolutionVerdict{AlreadySolved: room.IsSolved(), SolvedBy: room.SolvedBy}
		if !c.opts.Verifier.Verify(caseRow, guess) {
			return nil
		}
		verdict.Correct = true
		verdict.Solution = caseRow.Solution
		if room.IsSolved() {
			return nil
		}

		at := c.now().UTC()
		won, err := c.repos.Room.MarkSolved(ctx, room.ID, userID, at)
		if err != nil {
			return mapRepoError(err, "mark solved")
		}
		if !won {
			fresh, err := c.repos.Room.FindByID(ctx, room.ID)
			if err != nil {
				return mapRepoError(err, "room "+room.ID)
			}
			verdict.AlreadySolved = true
			verdict.SolvedBy = fresh.SolvedBy
			return nil
		}

		verdict.SolvedBy = userID
		c.broadcaster.Publish(caseSolved(room.ID, CaseSolved{
			UserID:      userID,
			DisplayName: member.DisplayName,
			Solution:    caseRow.Solution,
			SolvedAt:    at,
		}))
		c.log.WithFields(logrus.Fields{"room_id": room.ID, "user_id": userID}).Info("case solved")
		return nil
	})
	return verdict, err
}

// CaseSummary 是案件的公開資訊，不含答案
type CaseSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Victim      string `json:"victim"`
	ClueCount   int    `json:"clue_count"`
}

func summarizeCase(c *models.Case) CaseSummary {
	return CaseSummary{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Victim:      c.Victim,
		ClueCount:   len(c.Clues),
	}
}

// Snapshot 是房間在某一時間點的完整狀態。
// EventSeq 是取狀態當下最後發布的事件序號，Seq <= EventSeq 的事件已包含在內。
type Snapshot struct {
	Room         *models.Room         `json:"room"`
	Case         CaseSummary          `json:"case"`
	Participants []models.Participant `json:"participants"`
	Discovered   []int                `json:"discovered"`
	Discoveries  []Discovery          `json:"discoveries"`
	Chat         []models.ChatMessage `json:"chat"`
	EventSeq     uint64               `json:"event_seq"`
}

func (c *Coordinator) snapshotLocked(ctx context.Context, room *models.Room) (*Snapshot, error) {
	caseRow, err := c.repos.Case.FindByID(ctx, room.CaseID)
	if err != nil {
		return nil, mapRepoError(err, "case "+room.CaseID)
	}
	participants, err := c.registry.List(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	discoveries, err := c.ledger.Records(ctx, room, caseRow)
	if err != nil {
		return nil, err
	}
	chat, err := c.chat.Tail(ctx, room.ID, 0, true)
	if err != nil {
		return nil, err
	}

	discovered := make([]int, len(discoveries))
	for i, d := range discoveries {
		discovered[i] = d.ClueIndex
	}
	return &Snapshot{
		Room:         room,
		Case:         summarizeCase(caseRow),
		Participants: participants,
		Discovered:   discovered,
		Discoveries:  discoveries,
		Chat:         chat,
		EventSeq:     c.broadcaster.LastSeq(room.ID),
	}, nil
}

// Snapshot 在房間鎖內取得完整狀態，需要成員身分
func (c *Coordinator) Snapshot(ctx context.Context, roomID, userID string) (*Snapshot, error) {
	var snap *Snapshot
	err := c.withMember(ctx, roomID, userID, func(ctx context.Context, room *models.Room, _ *models.Participant) error {
		var err error
		snap, err = c.snapshotLocked(ctx, room)
		return err
	})
	return snap, err
}

// SnapshotAndSubscribe 在同一把鎖內訂閱並取得狀態，兩者之間不會漏掉事件
func (c *Coordinator) SnapshotAndSubscribe(ctx context.Context, roomID, userID string) (*Snapshot, *Subscription, error) {
	var (
		snap *Snapshot
		sub  *Subscription
	)
	err := c.withMember(ctx, roomID, userID, func(ctx context.Context, room *models.Room, _ *models.Participant) error {
		s, err := c.snapshotLocked(ctx, room)
		if err != nil {
			return err
		}
		snap = s
		sub = c.broadcaster.Subscribe(room.ID)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, sub, nil
}

func (c *Coordinator) Subscribe(roomID string) *Subscription {
	return c.broadcaster.Subscribe(roomID)
}

func (c *Coordinator) Unsubscribe(sub *Subscription) {
	c.broadcaster.Unsubscribe(sub)
}

// ExpireRooms 關閉在 createdBefore 之前建立且尚未關閉的房間，回傳關閉的數量
func (c *Coordinator) ExpireRooms(ctx context.Context, createdBefore time.Time) (int, error) {
	opCtx, cancel := c.storeCtx(ctx)
	rooms, err := c.repos.Room.FindExpired(opCtx, createdBefore, expireBatchSize)
	cancel()
	if err != nil {
		return 0, mapRepoError(err, "find expired rooms")
	}

	closed := 0
	for _, r := range rooms {
		err := c.withRoom(ctx, r.ID, func(ctx context.Context, room *models.Room) error {
			if room.Phase == models.PhaseClosed {
				return nil
			}
			if _, err := c.lifecycle.Expire(ctx, room); err != nil {
				return err
			}
			c.broadcaster.Forget(room.ID)
			closed++
			return nil
		})
		if err != nil {
			c.log.WithError(err).WithField("room_id", r.ID).Warn("failed to expire room")
		}
	}
	return closed, nil
}
