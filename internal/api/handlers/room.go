package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mystery_web/internal/middleware"
	"mystery_web/internal/models"
	"mystery_web/internal/service"
)

// RoomHandler 處理與解謎房間相關的請求
type RoomHandler struct {
	coordinator *service.Coordinator
	wsManager   *service.WebSocketManager
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(coordinator *service.Coordinator, wsManager *service.WebSocketManager) *RoomHandler {
	return &RoomHandler{coordinator: coordinator, wsManager: wsManager}
}

// resolveRoom 以路徑中的房間代碼找出房間，失敗時已寫出回應
func resolveRoom(c *gin.Context, coordinator *service.Coordinator) (*models.Room, bool) {
	room, err := coordinator.FindRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return nil, false
	}
	return room, true
}

// displayName 優先使用請求中的名稱，否則使用 token 內的名稱
func displayName(c *gin.Context, requested string) string {
	if requested != "" {
		return requested
	}
	return middleware.UserName(c)
}

// CreateRoom 處理創建新房間的請求，建立者成為主持人
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input struct {
		Name            string `json:"name" binding:"required"`
		CaseID          string `json:"case_id"`
		MaxParticipants int    `json:"max_participants"`
		DisplayName     string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	room, host, err := h.coordinator.CreateRoom(c.Request.Context(), service.CreateRoomRequest{
		Name:            input.Name,
		CaseID:          input.CaseID,
		MaxParticipants: input.MaxParticipants,
		HostID:          middleware.UserID(c),
		HostName:        displayName(c, input.DisplayName),
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"room": room, "host": host})
}

// GetRoom 回傳房間摘要與目前在線的連線數
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	summary, err := h.coordinator.Summary(c.Request.Context(), room.ID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":         summary.Room,
		"case":         summary.Case,
		"participants": summary.Participants,
		"online":       h.wsManager.GetRoomClients(room.ID),
	})
}

// JoinRoom 處理加入房間的請求，重複加入會回傳原本的成員資料
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var input struct {
		DisplayName string `json:"display_name"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
	}
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}

	p, already, err := h.coordinator.Join(c.Request.Context(), room.ID, middleware.UserID(c), displayName(c, input.DisplayName))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	status := http.StatusCreated
	if already {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"participant": p, "already_joined": already})
}

// LeaveRoom 處理離開房間的請求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	left, err := h.coordinator.Leave(c.Request.Context(), room.ID, middleware.UserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": left})
}

// StartGame 由主持人開始遊戲
func (h *RoomHandler) StartGame(c *gin.Context) {
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	updated, err := h.coordinator.StartGame(c.Request.Context(), room.ID, middleware.UserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// CloseRoom 由主持人關閉房間
func (h *RoomHandler) CloseRoom(c *gin.Context) {
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	updated, err := h.coordinator.CloseRoom(c.Request.Context(), room.ID, middleware.UserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DiscoverClue 記錄線索被發現，已被發現過的線索回傳 200
func (h *RoomHandler) DiscoverClue(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		HandleServiceError(c, service.ErrInvalidClue)
		return
	}
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}

	d, already, err := h.coordinator.DiscoverClue(c.Request.Context(), room.ID, middleware.UserID(c), index)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	status := http.StatusCreated
	if already {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"discovery": d, "newly_discovered": !already})
}

// GetChat 回傳最近的聊天訊息，order=desc 時由新到舊
func (h *RoomHandler) GetChat(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	ascending := true
	switch c.DefaultQuery("order", "asc") {
	case "asc":
	case "desc":
		ascending = false
	default:
		badRequest(c, errors.New("order must be asc or desc"))
		return
	}

	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	messages, err := h.coordinator.ChatTail(c.Request.Context(), room.ID, middleware.UserID(c), limit, ascending)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostChat 送出一則聊天訊息
func (h *RoomHandler) PostChat(c *gin.Context) {
	var input struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	msg, err := h.coordinator.PostChat(c.Request.Context(), room.ID, middleware.UserID(c), input.Body)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SubmitSolution 提交推理結果
func (h *RoomHandler) SubmitSolution(c *gin.Context) {
	var input struct {
		Guess string `json:"guess"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	verdict, err := h.coordinator.SubmitSolution(c.Request.Context(), room.ID, middleware.UserID(c), input.Guess)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// GetSnapshot 回傳房間完整狀態，僅限成員
func (h *RoomHandler) GetSnapshot(c *gin.Context) {
	room, ok := resolveRoom(c, h.coordinator)
	if !ok {
		return
	}
	snap, err := h.coordinator.Snapshot(c.Request.Context(), room.ID, middleware.UserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
