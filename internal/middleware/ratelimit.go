package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// windowStore 是限流需要的 Redis 指令，*redis.Client 即符合
type windowStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimit 以 Redis 計數器對每個使用者（未驗證時為 IP）做固定視窗限流。
// 視窗從第一個請求開始計算，到期後計數歸零。Redis 無法使用時放行請求。
func RateLimit(redisClient *redis.Client, maxRequests int, window time.Duration) gin.HandlerFunc {
	if redisClient == nil {
		panic("Redis client cannot be nil for RateLimit middleware")
	}
	return rateLimit(redisClient, maxRequests, window)
}

func rateLimit(store windowStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		panic("RateLimit requires positive maxRequests and window")
	}

	return func(c *gin.Context) {
		subject := UserID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		key := "ratelimit:" + subject
		ctx := c.Request.Context()

		count, err := store.Incr(ctx, key).Result()
		if err != nil {
			logrus.WithError(err).Warn("rate limit: redis incr failed, allowing request")
			c.Next()
			return
		}
		// 只在視窗的第一個請求設定到期時間，之後的請求不延長視窗
		if count == 1 {
			if err := store.Expire(ctx, key, window).Err(); err != nil {
				logrus.WithError(err).WithField("key", key).Warn("rate limit: failed to set window expiry")
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(maxRequests) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
