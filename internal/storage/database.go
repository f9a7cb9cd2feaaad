package storage

import (
	"mystery_web/internal/models"

	"gorm.io/gorm"
)

// DB 包裝 gorm 連線，供 repository 使用
type DB struct {
	*gorm.DB
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate 自動遷移資料庫結構
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.Case{},
		&models.Clue{},
		&models.Room{},
		&models.Participant{},
		&models.DiscoveryRecord{},
		&models.ChatMessage{},
	)
}
