package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"mystery_web/internal/repository"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrNotFound, CodeNotFound},
		{fmt.Errorf("%w: room x", ErrNotFound), CodeNotFound},
		{ErrNotHost, CodeNotHost},
		{ErrNotMember, CodeNotMember},
		{fmt.Errorf("%w: room is closed", ErrWrongPhase), CodeWrongPhase},
		{ErrInsufficientParticipants, CodeInsufficientParticipants},
		{ErrInvalidClue, CodeInvalidClue},
		{ErrEmptyMessage, CodeEmptyMessage},
		{ErrMessageTooLong, CodeMessageTooLong},
		{ErrCapacity, CodeCapacity},
		{ErrTransient, CodeTransient},
		{ErrResyncRequired, CodeResyncRequired},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err), tt.err.Error())
	}
}

func TestMapRepoError(t *testing.T) {
	assert.NoError(t, mapRepoError(nil, "x"))
	assert.ErrorIs(t, mapRepoError(repository.ErrNotFound, "room"), ErrNotFound)

	err := mapRepoError(fmt.Errorf("query: %w", context.DeadlineExceeded), "room")
	assert.True(t, IsTransient(err))

	boom := errors.New("connection reset")
	err = mapRepoError(boom, "room")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, CodeInternal, ErrorCode(err))
}
