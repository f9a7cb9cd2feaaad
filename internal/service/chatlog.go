package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
)

const (
	DefaultChatTailLimit    = 50
	MaxChatTailLimit        = 200
	DefaultMaxMessageLength = 1000
)

// ChatLog 是房間內依序號排列、只能追加的聊天紀錄
type ChatLog struct {
	repo      repository.ChatRepository
	pub       Publisher
	maxLength int
	tailLimit int
	now       func() time.Time
}

func NewChatLog(repo repository.ChatRepository, pub Publisher, maxLength, tailLimit int) *ChatLog {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if tailLimit <= 0 || tailLimit > MaxChatTailLimit {
		tailLimit = DefaultChatTailLimit
	}
	return &ChatLog{repo: repo, pub: pub, maxLength: maxLength, tailLimit: tailLimit, now: time.Now}
}

// Post 寫入訊息並分配下一個序號
func (l *ChatLog) Post(ctx context.Context, roomID, userID, displayName, body string) (models.ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(body); n > l.maxLength {
		return models.ChatMessage{}, fmt.Errorf("%w: %d > %d", ErrMessageTooLong, n, l.maxLength)
	}

	msg := models.ChatMessage{
		RoomID:     roomID,
		AuthorID:   userID,
		AuthorName: displayName,
		Body:       body,
		SentAt:     l.now().UTC(),
	}
	if err := l.repo.Append(ctx, &msg); err != nil {
		return models.ChatMessage{}, mapRepoError(err, "append chat message")
	}

	l.pub.Publish(chatPosted(msg))
	return msg, nil
}

// Tail 取最新的 limit 則訊息。ascending 時由舊到新，否則由新到舊。
func (l *ChatLog) Tail(ctx context.Context, roomID string, limit int, ascending bool) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = l.tailLimit
	}
	if limit > MaxChatTailLimit {
		limit = MaxChatTailLimit
	}
	messages, err := l.repo.Tail(ctx, roomID, limit)
	if err != nil {
		return nil, mapRepoError(err, "tail chat")
	}
	if !ascending {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}
