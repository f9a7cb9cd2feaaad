package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"mystery_web/internal/service"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// QRHandler 產生房間加入連結的 QR code
type QRHandler struct {
	coordinator *service.Coordinator
	publicURL   string
}

func NewQRHandler(coordinator *service.Coordinator, publicURL string) *QRHandler {
	return &QRHandler{coordinator: coordinator, publicURL: strings.TrimRight(publicURL, "/")}
}

// JoinURL 回傳房間的加入連結
func (h *QRHandler) JoinURL(code string) string {
	return h.publicURL + "/join/" + code
}

// RoomQR 以 PNG 回傳加入連結，size 參數限制在 128 到 1024 像素
func (h *QRHandler) RoomQR(c *gin.Context) {
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			size = min(max(n, minQRSize), maxQRSize)
		}
	}

	png, err := qrcode.Encode(h.JoinURL(room.Code), qrcode.Medium, size)
	if err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Error("qr: encode failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "無法產生 QR code", "code": service.CodeInternal})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
