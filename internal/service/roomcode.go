package service

import (
	"crypto/rand"
	"io"
	"strings"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// 大於等於此值的隨機位元組丟棄，讓每個字元機率相同
	roomCodeByteLimit = 256 - 256%len(roomCodeAlphabet)
)

// generateRoomCode 產生 6 碼大寫英數房間代碼
func generateRoomCode() (string, error) {
	return readRoomCode(rand.Reader)
}

func readRoomCode(r io.Reader) (string, error) {
	code := make([]byte, 0, roomCodeLength)
	buf := make([]byte, roomCodeLength)
	for len(code) < roomCodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= roomCodeByteLimit {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == roomCodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// NormalizeRoomCode 把使用者輸入的代碼轉成儲存格式，格式不符時回傳 false
func NormalizeRoomCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != roomCodeLength {
		return "", false
	}
	for _, r := range code {
		if !strings.ContainsRune(roomCodeAlphabet, r) {
			return "", false
		}
	}
	return code, true
}
