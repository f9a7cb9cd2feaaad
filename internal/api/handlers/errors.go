package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mystery_web/internal/service"
)

// statusFor 把 service 錯誤對應到 HTTP 狀態碼
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotHost), errors.Is(err, service.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, service.ErrWrongPhase),
		errors.Is(err, service.ErrCapacity),
		errors.Is(err, service.ErrInsufficientParticipants):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidClue),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrMessageTooLong),
		errors.Is(err, service.ErrEmptyDisplayName),
		errors.Is(err, service.ErrInvalidRoomName):
		return http.StatusBadRequest
	case service.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError 寫出錯誤回應，內部錯誤只記錄在日誌
func HandleServiceError(c *gin.Context, err error) {
	status := statusFor(err)
	code := service.ErrorCode(err)
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).WithError(err).Error("unhandled service error")
		c.JSON(status, gin.H{"error": "伺服器內部錯誤", "code": code})
		return
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "BAD_REQUEST"})
}
