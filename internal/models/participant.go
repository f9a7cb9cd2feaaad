package models

import "time"

// Participant 表示房間內的一位成員。(room_id, user_id) 唯一。
// 沒有軟刪除，離開後可以重新加入。
type Participant struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	RoomID      string    `gorm:"size:36;not null;uniqueIndex:idx_participants_room_user,priority:1" json:"room_id"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:idx_participants_room_user,priority:2" json:"user_id"`
	DisplayName string    `gorm:"size:64;not null" json:"display_name"`
	JoinedAt    time.Time `gorm:"not null;index" json:"joined_at"`
}
