package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystery_web/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(tokens *utils.TokenManager) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(tokens))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "name": UserName(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tokens := utils.NewTokenManager("secret", time.Hour)
	token, err := tokens.GenerateToken("u1", "Ann")
	require.NoError(t, err)
	r := newAuthRouter(tokens)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":"u1","name":"Ann"}`, w.Body.String())
			}
		})
	}
}

func TestLoggerPassesThrough(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	r := gin.New()
	r.Use(Logger(log))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := gin.New()
	r.Use(RateLimit(client, 1, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitRejectsBadArguments(t *testing.T) {
	assert.Panics(t, func() { RateLimit(nil, 1, time.Second) })
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	assert.Panics(t, func() { RateLimit(client, 0, time.Second) })
}

// fakeWindowStore 模擬 Redis 的 INCR 與 EXPIRE
type fakeWindowStore struct {
	counts   map[string]int64
	expires  map[string]int
	expireAt map[string]time.Duration
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{
		counts:   make(map[string]int64),
		expires:  make(map[string]int),
		expireAt: make(map[string]time.Duration),
	}
}

func (s *fakeWindowStore) Incr(_ context.Context, key string) *redis.IntCmd {
	s.counts[key]++
	return redis.NewIntResult(s.counts[key], nil)
}

func (s *fakeWindowStore) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	s.expires[key]++
	s.expireAt[key] = expiration
	return redis.NewBoolResult(true, nil)
}

// expire 模擬視窗到期
func (s *fakeWindowStore) expire(key string) {
	delete(s.counts, key)
}

func TestRateLimitFixedWindow(t *testing.T) {
	store := newFakeWindowStore()
	tokens := utils.NewTokenManager("secret", time.Hour)
	token, err := tokens.GenerateToken("u1", "Ann")
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(tokens), rateLimit(store, 2, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	w := send()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	// 超過上限後持續重試也不會延長視窗
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusTooManyRequests, send().Code)
	}
	assert.Equal(t, 1, store.expires["ratelimit:u1"])
	assert.Equal(t, time.Minute, store.expireAt["ratelimit:u1"])

	store.expire("ratelimit:u1")
	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, 2, store.expires["ratelimit:u1"])
}
