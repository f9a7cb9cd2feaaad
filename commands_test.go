package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystery_web/internal/utils"
	"mystery_web/pkg/config"
)

func writeTestConfig(t *testing.T, driver string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "db:\n  driver: " + driver + "\n  path: " + filepath.Join(t.TempDir(), "test.db") +
		"\nauth:\n  jwt_secret: cmd-secret\nlog:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	path := writeTestConfig(t, "memory")
	out, err := run(t, "token", "--config", path, "--user", "u1", "--name", "Ann")
	require.NoError(t, err)

	claims, err := utils.NewTokenManager("cmd-secret", time.Hour).ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Ann", claims.Name)
}

func TestSeedCommand(t *testing.T) {
	_, err := run(t, "seed", "--config", writeTestConfig(t, "memory"))
	assert.Error(t, err)

	out, err := run(t, "seed", "--config", writeTestConfig(t, "sqlite"), "--cases", "configs/cases.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 1 case(s)")
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg, err := config.Load(writeTestConfig(t, "sqlite"), nil)
	require.NoError(t, err)

	repos, closeStore, err := openStore(cfg)
	require.NoError(t, err)
	defer closeStore()

	n, err := seedCases(context.Background(), repos, "configs/cases.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := repos.Case.Default(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, c.Clues)
}

func TestSessionConfig(t *testing.T) {
	cfg := &config.Config{Session: config.SessionConfig{
		StoreTimeout:           time.Second,
		SubscriberQueue:        32,
		ChatTailLimit:          20,
		MaxMessageLength:       500,
		DefaultMaxParticipants: 4,
		RoomTTL:                time.Hour,
		ReaperInterval:         time.Minute,
		WriteWait:              5 * time.Second,
		PongWait:               30 * time.Second,
	}}
	sc := sessionConfig(cfg)
	assert.Equal(t, time.Second, sc.StoreTimeout)
	assert.Equal(t, 32, sc.SubscriberQueue)
	assert.Equal(t, 4, sc.DefaultMaxParticipants)
	assert.Equal(t, 30*time.Second, sc.WebSocket.PongWait)
	assert.Equal(t, time.Hour, sc.RoomTTL)
}
