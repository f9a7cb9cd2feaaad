package storage

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB 開啟 SQLite 資料庫，用於本機開發與測試。
// path 為 ":memory:" 時使用記憶體資料庫。
func NewSQLiteDB(path string, logLevel logger.LogLevel) (*DB, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite 只允許單一寫入者；記憶體資料庫也必須共用同一條連線
	sqlDB.SetMaxOpenConns(1)

	return &DB{DB: db}, nil
}
