package service

import (
	"time"

	"mystery_web/internal/repository"
)

// Config 是 session 相關的設定
type Config struct {
	Options
	SubscriberQueue int
	RoomTTL         time.Duration
	ReaperInterval  time.Duration
	WebSocket       WebSocketOptions
}

type Services struct {
	Broadcaster      *Broadcaster
	Coordinator      *Coordinator
	WebSocketManager *WebSocketManager
	Reaper           *RoomReaper
}

func NewServices(repos *repository.Repositories, cfg Config) *Services {
	broadcaster := NewBroadcaster(cfg.SubscriberQueue)
	coordinator := NewCoordinator(repos, broadcaster, cfg.Options)
	wsManager := NewWebSocketManager(coordinator, cfg.WebSocket)

	services := &Services{
		Broadcaster:      broadcaster,
		Coordinator:      coordinator,
		WebSocketManager: wsManager,
	}
	if cfg.RoomTTL > 0 && cfg.ReaperInterval > 0 {
		services.Reaper = NewRoomReaper(coordinator, cfg.RoomTTL, cfg.ReaperInterval)
	}
	return services
}
