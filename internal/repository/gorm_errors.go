package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// translateError 把 gorm/driver 錯誤轉成本套件的錯誤
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return ErrDuplicateEntry
	}
	return err
}

// isUniqueViolation 處理未開啟 TranslateError 時 postgres 與 sqlite 的原始錯誤字串
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
