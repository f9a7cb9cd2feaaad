package models

import "time"

// ChatMessage 表示一則聊天訊息
type ChatMessage struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	RoomID     string    `gorm:"size:36;not null;uniqueIndex:idx_chat_room_seq,priority:1" json:"room_id"`
	Sequence   int64     `gorm:"not null;uniqueIndex:idx_chat_room_seq,priority:2" json:"sequence"`
	AuthorID   string    `gorm:"size:64;not null" json:"author_id"`
	AuthorName string    `gorm:"size:64;not null" json:"author_name"` // 發送當下的顯示名稱
	Body       string    `gorm:"type:text;not null" json:"body"`
	SentAt     time.Time `gorm:"not null" json:"sent_at"`
}
