package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"mystery_web/internal/middleware"
	"mystery_web/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 身分由 token 驗證，不依賴 origin
	},
}

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	wsManager   *service.WebSocketManager
	coordinator *service.Coordinator
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
func NewWebSocketHandler(wsManager *service.WebSocketManager, coordinator *service.Coordinator) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:   wsManager,
		coordinator: coordinator,
	}
}

// HandleWebSocket 先以代碼找出房間再升級連線，成員檢查在連線建立後進行
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已經寫出錯誤回應
		logrus.WithError(err).WithField("room_id", room.ID).Warn("websocket upgrade failed")
		return
	}

	h.wsManager.HandleConnection(c.Request.Context(), conn, room.ID, userID)
}
