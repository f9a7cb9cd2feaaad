package service

import (
	"context"
	"errors"
	"fmt"

	"mystery_web/internal/repository"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrNotHost                  = errors.New("only the host can do this")
	ErrNotMember                = errors.New("not a member of this room")
	ErrWrongPhase               = errors.New("operation not allowed in the current phase")
	ErrInsufficientParticipants = errors.New("not enough participants")
	ErrInvalidClue              = errors.New("clue index out of range")
	ErrEmptyMessage             = errors.New("message is empty")
	ErrMessageTooLong           = errors.New("message is too long")
	ErrEmptyDisplayName         = errors.New("display name is empty")
	ErrInvalidRoomName          = errors.New("invalid room name")
	ErrCapacity                 = errors.New("room is full")
	// ErrTransient 表示儲存或傳輸逾時，呼叫端可以重試
	ErrTransient = errors.New("temporarily unavailable")
)

// 對外穩定的錯誤代碼
const (
	CodeNotFound                 = "NOT_FOUND"
	CodeNotHost                  = "NOT_HOST"
	CodeNotMember                = "NOT_MEMBER"
	CodeWrongPhase               = "WRONG_PHASE"
	CodeInsufficientParticipants = "INSUFFICIENT_PARTICIPANTS"
	CodeInvalidClue              = "INVALID_CLUE"
	CodeEmptyMessage             = "EMPTY_MESSAGE"
	CodeMessageTooLong           = "MESSAGE_TOO_LONG"
	CodeEmptyDisplayName         = "EMPTY_DISPLAY_NAME"
	CodeInvalidRoomName          = "INVALID_ROOM_NAME"
	CodeCapacity                 = "CAPACITY"
	CodeTransient                = "TRANSIENT"
	CodeResyncRequired           = "RESYNC_REQUIRED"
	CodeInternal                 = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, CodeNotFound},
	{ErrNotHost, CodeNotHost},
	{ErrNotMember, CodeNotMember},
	{ErrWrongPhase, CodeWrongPhase},
	{ErrInsufficientParticipants, CodeInsufficientParticipants},
	{ErrInvalidClue, CodeInvalidClue},
	{ErrEmptyMessage, CodeEmptyMessage},
	{ErrMessageTooLong, CodeMessageTooLong},
	{ErrEmptyDisplayName, CodeEmptyDisplayName},
	{ErrInvalidRoomName, CodeInvalidRoomName},
	{ErrCapacity, CodeCapacity},
	{ErrTransient, CodeTransient},
	{ErrResyncRequired, CodeResyncRequired},
}

// ErrorCode 回傳錯誤對應的代碼，未知錯誤一律為 INTERNAL
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// IsTransient 回報錯誤是否可以重試
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// mapRepoError 把 repository 層的錯誤轉成 service 層的錯誤
func mapRepoError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", ErrTransient, what, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
