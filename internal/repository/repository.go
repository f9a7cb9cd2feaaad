package repository

import (
	"context"
	"time"

	"mystery_web/internal/models"
	"mystery_web/internal/storage"
)

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id string) (*models.Room, error)
	// FindOpenByCode 只搜尋未關閉的房間，code 需為大寫
	FindOpenByCode(ctx context.Context, code string) (*models.Room, error)
	// UpdatePhase 以 compare-and-set 方式切換狀態，回傳是否成功切換
	UpdatePhase(ctx context.Context, id string, from, to models.Phase, at time.Time) (bool, error)
	// MarkSolved 只有第一次呼叫會成功
	MarkSolved(ctx context.Context, id, userID string, at time.Time) (bool, error)
	FindExpired(ctx context.Context, createdBefore time.Time, limit int) ([]models.Room, error)
}

type ParticipantRepository interface {
	// InsertIfAbsent 回傳實際存在的那一筆資料，以及這次是否真的寫入
	InsertIfAbsent(ctx context.Context, p models.Participant) (models.Participant, bool, error)
	Delete(ctx context.Context, roomID, userID string) (bool, error)
	Find(ctx context.Context, roomID, userID string) (*models.Participant, error)
	ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error)
	Count(ctx context.Context, roomID string) (int64, error)
}

type DiscoveryRepository interface {
	InsertIfAbsent(ctx context.Context, rec models.DiscoveryRecord) (models.DiscoveryRecord, bool, error)
	ListByRoom(ctx context.Context, roomID string) ([]models.DiscoveryRecord, error)
}

type ChatRepository interface {
	// Append 原子地分配房間內下一個序號並寫入訊息
	Append(ctx context.Context, msg *models.ChatMessage) error
	// Tail 回傳最新的 limit 則訊息，依序號遞增排列
	Tail(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

// CaseRepository 是唯讀的案件內容來源；Upsert 只供匯入使用
type CaseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Case, error)
	Default(ctx context.Context) (*models.Case, error)
	Upsert(ctx context.Context, c *models.Case) error
}

type Repositories struct {
	Room        RoomRepository
	Participant ParticipantRepository
	Discovery   DiscoveryRepository
	Chat        ChatRepository
	Case        CaseRepository
}

func NewRepositories(db *storage.DB) *Repositories {
	return &Repositories{
		Room:        NewRoomRepository(db),
		Participant: NewParticipantRepository(db),
		Discovery:   NewDiscoveryRepository(db),
		Chat:        NewChatRepository(db),
		Case:        NewCaseRepository(db),
	}
}
