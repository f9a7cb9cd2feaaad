package models

import (
	"time"
)

// Room 表示一個解謎房間
type Room struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Code            string     `gorm:"size:6;not null;uniqueIndex:idx_rooms_open_code,where:phase <> 'closed'" json:"code"`
	Name            string     `gorm:"size:100;not null" json:"name"`
	Phase           Phase      `gorm:"size:16;not null;index" json:"phase"`
	HostID          string     `gorm:"size:64;not null" json:"host_id"`
	CaseID          string     `gorm:"size:64;not null" json:"case_id"`
	MaxParticipants int        `gorm:"not null" json:"max_participants"`
	ChatSeq         int64      `gorm:"not null;default:0" json:"-"` // 最後一則聊天訊息的序號
	SolvedBy        string     `gorm:"size:64;not null;default:''" json:"solved_by,omitempty"`
	SolvedAt        *time.Time `json:"solved_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Phase 定義房間生命週期的狀態
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseClosed  Phase = "closed"
)

// IsSolved 回報案件是否已被破解
func (r *Room) IsSolved() bool {
	return r.SolvedBy != ""
}
