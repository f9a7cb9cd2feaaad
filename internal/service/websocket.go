package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWriteWait = 10 * time.Second
	DefaultPongWait  = 60 * time.Second
	maxMessageSize   = 4096
	sendBufferSize   = 256
)

// 下行 frame 類型
const (
	FrameTypeSnapshot = "snapshot"
	FrameTypeEvent    = "event"
	FrameTypeAck      = "ack"
	FrameTypeError    = "error"
)

// 上行指令類型
const (
	CommandDiscoverClue   = "discover_clue"
	CommandPostChat       = "post_chat"
	CommandStartGame      = "start_game"
	CommandCloseRoom      = "close_room"
	CommandSubmitSolution = "submit_solution"
	CommandLeave          = "leave"
	CommandSnapshot       = "snapshot"
)

// Frame 是送往用戶端的訊息
type Frame struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	Snapshot  *Snapshot     `json:"snapshot,omitempty"`
	Event     *SessionEvent `json:"event,omitempty"`
	Result    interface{}   `json:"result,omitempty"`
	Error     *FrameError   `json:"error,omitempty"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Command 是用戶端送來的指令
type Command struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	ClueIndex *int   `json:"clue_index,omitempty"`
	Body      string `json:"body,omitempty"`
	Guess     string `json:"guess,omitempty"`
}

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	Conn     *websocket.Conn
	UserID   string
	RoomID   string
	SendChan chan Frame // 由唯一的 writePump 消費

	done     chan struct{}
	stopOnce sync.Once
}

func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// send 在連線結束後直接丟棄
func (c *Client) send(f Frame) bool {
	select {
	case c.SendChan <- f:
		return true
	case <-c.done:
		return false
	}
}

type WebSocketOptions struct {
	WriteWait time.Duration
	PongWait  time.Duration
}

// WebSocketManager 把 Coordinator 的指令與事件串流接到 WebSocket 連線上
type WebSocketManager struct {
	coordinator *Coordinator
	writeWait   time.Duration
	pongWait    time.Duration
	pingPeriod  time.Duration

	clients    map[string]map[*Client]bool // roomID -> client
	clientsMux sync.RWMutex
	log        *logrus.Entry
}

func NewWebSocketManager(coordinator *Coordinator, opts WebSocketOptions) *WebSocketManager {
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	return &WebSocketManager{
		coordinator: coordinator,
		writeWait:   opts.WriteWait,
		pongWait:    opts.PongWait,
		pingPeriod:  opts.PongWait * 9 / 10,
		clients:     make(map[string]map[*Client]bool),
		log:         logrus.WithField("component", "websocket"),
	}
}

// HandleConnection 先送出 snapshot，接著轉送事件並處理上行指令，直到連線結束
func (m *WebSocketManager) HandleConnection(ctx context.Context, conn *websocket.Conn, roomID, userID string) {
	logCtx := m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	snap, sub, err := m.coordinator.SnapshotAndSubscribe(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Info("websocket subscribe rejected")
		conn.SetWriteDeadline(time.Now().Add(m.writeWait))
		_ = conn.WriteJSON(errorFrame("", err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrorCode(err)))
		conn.Close()
		return
	}

	client := &Client{
		Conn:     conn,
		UserID:   userID,
		RoomID:   roomID,
		SendChan: make(chan Frame, sendBufferSize),
		done:     make(chan struct{}),
	}
	client.SendChan <- Frame{Type: FrameTypeSnapshot, Snapshot: snap}

	ctx, cancel := context.WithCancel(ctx)
	m.addClient(client)
	writerDone := make(chan struct{})
	defer func() {
		cancel()
		client.stop()
		// 連線由 writePump 關閉，等它送完佇列中的 frame
		<-writerDone
		sub.Close()
		m.removeClient(client)
	}()

	logCtx.Info("websocket connected")
	go func() {
		defer close(writerDone)
		m.writePump(client)
	}()
	go m.eventPump(ctx, client, sub)
	m.readPump(ctx, client)
	logCtx.Info("websocket disconnected")
}

// readPump 持續讀取並執行用戶端指令
func (m *WebSocketManager) readPump(ctx context.Context, client *Client) {
	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(m.pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(m.pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				m.log.WithError(err).WithField("room_id", client.RoomID).Warn("websocket unexpected close")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			client.send(Frame{Type: FrameTypeError, Error: &FrameError{Code: "BAD_REQUEST", Message: "malformed command"}})
			continue
		}

		if !client.send(m.execute(ctx, client, cmd)) {
			return
		}
		if cmd.Type == CommandLeave {
			// 離開後不再是成員，結束連線
			client.stop()
			return
		}
	}
}

// execute 執行一個指令並回傳 ack 或 error frame
func (m *WebSocketManager) execute(ctx context.Context, client *Client, cmd Command) Frame {
	var (
		result interface{}
		err    error
	)
	switch cmd.Type {
	case CommandDiscoverClue:
		if cmd.ClueIndex == nil {
			err = ErrInvalidClue
			break
		}
		var d Discovery
		var already bool
		d, already, err = m.coordinator.DiscoverClue(ctx, client.RoomID, client.UserID, *cmd.ClueIndex)
		result = map[string]interface{}{"discovery": d, "already_discovered": already}
	case CommandPostChat:
		result, err = m.coordinator.PostChat(ctx, client.RoomID, client.UserID, cmd.Body)
	case CommandStartGame:
		result, err = m.coordinator.StartGame(ctx, client.RoomID, client.UserID)
	case CommandCloseRoom:
		result, err = m.coordinator.CloseRoom(ctx, client.RoomID, client.UserID)
	case CommandSubmitSolution:
		result, err = m.coordinator.SubmitSolution(ctx, client.RoomID, client.UserID, cmd.Guess)
	case CommandLeave:
		var left bool
		left, err = m.coordinator.Leave(ctx, client.RoomID, client.UserID)
		result = map[string]bool{"left": left}
	case CommandSnapshot:
		var snap *Snapshot
		snap, err = m.coordinator.Snapshot(ctx, client.RoomID, client.UserID)
		if err == nil {
			return Frame{Type: FrameTypeSnapshot, RequestID: cmd.RequestID, Snapshot: snap}
		}
	default:
		return Frame{Type: FrameTypeError, RequestID: cmd.RequestID, Error: &FrameError{Code: "UNKNOWN_COMMAND", Message: cmd.Type}}
	}

	if err != nil {
		if ErrorCode(err) == CodeInternal {
			m.log.WithError(err).WithFields(logrus.Fields{
				"room_id": client.RoomID,
				"user_id": client.UserID,
				"command": cmd.Type,
			}).Error("websocket command failed")
		}
		return errorFrame(cmd.RequestID, err)
	}
	return Frame{Type: FrameTypeAck, RequestID: cmd.RequestID, Result: result}
}

func errorFrame(requestID string, err error) Frame {
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return Frame{Type: FrameTypeError, RequestID: requestID, Error: &FrameError{Code: code, Message: msg}}
}

// eventPump 把訂閱的事件轉成 frame。落後時改送一份新的 snapshot。
func (m *WebSocketManager) eventPump(ctx context.Context, client *Client, sub *Subscription) {
	for {
		ev, err := sub.Next(ctx)
		switch {
		case err == nil:
			if !client.send(Frame{Type: FrameTypeEvent, Event: &ev}) {
				return
			}
		case errors.Is(err, ErrResyncRequired):
			snap, err := m.coordinator.Snapshot(ctx, client.RoomID, client.UserID)
			if err != nil {
				m.log.WithError(err).WithField("room_id", client.RoomID).Info("resync failed, closing websocket")
				client.stop()
				return
			}
			if !client.send(Frame{Type: FrameTypeSnapshot, Snapshot: snap}) {
				return
			}
		default:
			// 訂閱結束（房間關閉）或連線結束
			client.stop()
			return
		}
	}
}

// writePump 是唯一寫入連線的 goroutine，結束時關閉連線
func (m *WebSocketManager) writePump(client *Client) {
	ticker := time.NewTicker(m.pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case frame := <-client.SendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(m.writeWait))
			if err := client.Conn.WriteJSON(frame); err != nil {
				client.stop()
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(m.writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.stop()
				return
			}

		case <-client.done:
			m.drain(client)
			client.Conn.SetWriteDeadline(time.Now().Add(m.writeWait))
			client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain 送出結束前已排入的 frame
func (m *WebSocketManager) drain(client *Client) {
	for {
		select {
		case frame := <-client.SendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(m.writeWait))
			if err := client.Conn.WriteJSON(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (m *WebSocketManager) addClient(client *Client) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if m.clients[client.RoomID] == nil {
		m.clients[client.RoomID] = make(map[*Client]bool)
	}
	m.clients[client.RoomID][client] = true
}

func (m *WebSocketManager) removeClient(client *Client) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if clients, ok := m.clients[client.RoomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(m.clients, client.RoomID)
		}
	}
}

// GetRoomClients 獲取指定房間的在線連線數量
func (m *WebSocketManager) GetRoomClients(roomID string) int {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()

	return len(m.clients[roomID])
}
