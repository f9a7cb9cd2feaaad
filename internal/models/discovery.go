package models

import "time"

// DiscoveryRecord 記錄某個線索在房間內被誰揭露。每個 (room_id, clue_index) 最多一筆。
type DiscoveryRecord struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	RoomID       string    `gorm:"size:36;not null;uniqueIndex:idx_discoveries_room_clue,priority:1" json:"room_id"`
	ClueIndex    int       `gorm:"not null;uniqueIndex:idx_discoveries_room_clue,priority:2" json:"clue_index"`
	DiscoveredBy string    `gorm:"size:64;not null" json:"discovered_by"`
	DiscoveredAt time.Time `gorm:"not null" json:"discovered_at"`
}
