package repository

import "errors"

var (
	// ErrNotFound 表示請求的記錄不存在
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示寫入違反了唯一約束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)
