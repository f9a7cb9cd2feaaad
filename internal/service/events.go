package service

import (
	"time"

	"mystery_web/internal/models"
)

// EventType 標示 SessionEvent 攜帶的內容
type EventType string

const (
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventClueDiscovered    EventType = "clue_discovered"
	EventChatPosted        EventType = "chat_posted"
	EventPhaseChanged      EventType = "phase_changed"
	EventCaseSolved        EventType = "case_solved"
)

// SessionEvent 是推送給訂閱者的狀態變化。每個事件只會設定一個內容欄位。
// Seq 由 Broadcaster 在發布時依房間遞增編號。
type SessionEvent struct {
	Type        EventType           `json:"type"`
	RoomID      string              `json:"room_id"`
	Seq         uint64              `json:"seq"`
	At          time.Time           `json:"at"`
	Participant *models.Participant `json:"participant,omitempty"`
	Discovery   *Discovery          `json:"discovery,omitempty"`
	Message     *models.ChatMessage `json:"message,omitempty"`
	Phase       *PhaseChange        `json:"phase,omitempty"`
	Solved      *CaseSolved         `json:"solved,omitempty"`
}

// Discovery 是一筆揭露紀錄加上線索內容
type Discovery struct {
	models.DiscoveryRecord
	Clue models.Clue `json:"clue"`
}

type PhaseChange struct {
	From   models.Phase `json:"from"`
	To     models.Phase `json:"to"`
	Reason string       `json:"reason"`
}

const (
	PhaseReasonHost    = "host"
	PhaseReasonExpired = "expired"
)

type CaseSolved struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Solution    string    `json:"solution"`
	SolvedAt    time.Time `json:"solved_at"`
}

// Publisher 發布事件並回傳帶有序號的事件
type Publisher interface {
	Publish(event SessionEvent) SessionEvent
}

func participantJoined(p models.Participant) SessionEvent {
	return SessionEvent{Type: EventParticipantJoined, RoomID: p.RoomID, At: p.JoinedAt, Participant: &p}
}

func participantLeft(p models.Participant, at time.Time) SessionEvent {
	return SessionEvent{Type: EventParticipantLeft, RoomID: p.RoomID, At: at, Participant: &p}
}

func clueDiscovered(d Discovery) SessionEvent {
	return SessionEvent{Type: EventClueDiscovered, RoomID: d.RoomID, At: d.DiscoveredAt, Discovery: &d}
}

func chatPosted(m models.ChatMessage) SessionEvent {
	return SessionEvent{Type: EventChatPosted, RoomID: m.RoomID, At: m.SentAt, Message: &m}
}

func phaseChanged(roomID string, from, to models.Phase, reason string, at time.Time) SessionEvent {
	return SessionEvent{Type: EventPhaseChanged, RoomID: roomID, At: at, Phase: &PhaseChange{From: from, To: to, Reason: reason}}
}

func caseSolved(roomID string, s CaseSolved) SessionEvent {
	return SessionEvent{Type: EventCaseSolved, RoomID: roomID, At: s.SolvedAt, Solved: &s}
}
