package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"mystery_web/internal/api/handlers"
	"mystery_web/internal/middleware"
	"mystery_web/internal/service"
	"mystery_web/internal/utils"
)

// RouteOptions 是路由層的選項
type RouteOptions struct {
	PublicURL string
	// Redis 為 nil 時不啟用限流
	Redis           *redis.Client
	RateLimitMax    int
	RateLimitWindow time.Duration
}

func SetupRoutes(r *gin.Engine, services *service.Services, tokens *utils.TokenManager, opts RouteOptions) {
	// 初始化 handlers
	roomHandler := handlers.NewRoomHandler(services.Coordinator, services.WebSocketManager)
	wsHandler := handlers.NewWebSocketHandler(services.WebSocketManager, services.Coordinator)
	qrHandler := handlers.NewQRHandler(services.Coordinator, opts.PublicURL)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	// 基本的健康檢查
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware(tokens))
	if opts.Redis != nil {
		authorized.Use(middleware.RateLimit(opts.Redis, opts.RateLimitMax, opts.RateLimitWindow))
	}
	{
		rooms := authorized.Group("/rooms")
		{
			// 基本操作
			rooms.POST("", roomHandler.CreateRoom)   // 創建房間
			rooms.GET("/:code", roomHandler.GetRoom) // 房間摘要
			rooms.GET("/:code/qr", qrHandler.RoomQR) // 加入連結 QR code
			rooms.GET("/:code/snapshot", roomHandler.GetSnapshot)

			// 房間參與
			rooms.POST("/:code/join", roomHandler.JoinRoom)   // 加入房間
			rooms.POST("/:code/leave", roomHandler.LeaveRoom) // 離開房間

			// 主持人操作
			rooms.POST("/:code/start", roomHandler.StartGame)
			rooms.POST("/:code/close", roomHandler.CloseRoom)

			// 遊戲進行
			rooms.POST("/:code/clues/:index/discover", roomHandler.DiscoverClue)
			rooms.GET("/:code/chat", roomHandler.GetChat)
			rooms.POST("/:code/chat", roomHandler.PostChat)
			rooms.POST("/:code/solution", roomHandler.SubmitSolution)

			// WebSocket 連接點
			rooms.GET("/:code/ws", wsHandler.HandleWebSocket)
		}
	}
}
