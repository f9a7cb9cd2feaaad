package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mystery_web/internal/utils"
)

// context 中的鍵
const (
	ContextUserID   = "userID"
	ContextUserName = "userName"
)

// AuthMiddleware 驗證 Bearer token。瀏覽器的 WebSocket 無法帶標頭，因此也接受 ?token= 參數。
func AuthMiddleware(tokens *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			c.Abort()
			return
		}

		claims, err := tokens.ParseToken(token)
		if err != nil {
			logrus.WithError(err).Warn("auth: invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserName, claims.Name)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// UserID 取出已驗證的使用者 ID
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// UserName 取出 token 中的顯示名稱
func UserName(c *gin.Context) string {
	return c.GetString(ContextUserName)
}
