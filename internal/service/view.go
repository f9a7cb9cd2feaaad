package service

import (
	"fmt"
	"sort"

	"mystery_web/internal/models"
)

// RoomView 是用戶端依 Snapshot 與事件重建的房間狀態。
// 重複或過期的事件不會改變狀態，跳號的事件會要求重新同步。
type RoomView struct {
	Room         models.Room
	Case         CaseSummary
	Participants []models.Participant
	Discoveries  map[int]Discovery
	Chat         []models.ChatMessage
	LastSeq      uint64
}

func NewRoomView(s *Snapshot) *RoomView {
	v := &RoomView{
		Case:         s.Case,
		Participants: append([]models.Participant(nil), s.Participants...),
		Discoveries:  make(map[int]Discovery, len(s.Discoveries)),
		Chat:         append([]models.ChatMessage(nil), s.Chat...),
		LastSeq:      s.EventSeq,
	}
	if s.Room != nil {
		v.Room = *s.Room
	}
	for _, d := range s.Discoveries {
		v.Discoveries[d.ClueIndex] = d
	}
	return v
}

// Reset 以新的 Snapshot 取代目前狀態，用於落後後的重新同步
func (v *RoomView) Reset(s *Snapshot) {
	*v = *NewRoomView(s)
}

// Apply 套用事件，回傳狀態是否改變。
// 序號不大於 LastSeq 的事件直接忽略；序號跳號時不套用並回傳 ErrResyncRequired，
// 呼叫端應重新取得 Snapshot 後 Reset。
func (v *RoomView) Apply(ev SessionEvent) (bool, error) {
	if ev.Seq != 0 {
		if ev.Seq <= v.LastSeq {
			return false, nil
		}
		if ev.Seq != v.LastSeq+1 {
			return false, fmt.Errorf("%w: expected seq %d, got %d", ErrResyncRequired, v.LastSeq+1, ev.Seq)
		}
		v.LastSeq = ev.Seq
	}
	return v.apply(ev), nil
}

func (v *RoomView) apply(ev SessionEvent) bool {
	switch ev.Type {
	case EventParticipantJoined:
		if ev.Participant == nil || v.hasParticipant(ev.Participant.UserID) {
			return false
		}
		v.Participants = append(v.Participants, *ev.Participant)
		return true

	case EventParticipantLeft:
		if ev.Participant == nil {
			return false
		}
		for i, p := range v.Participants {
			if p.UserID == ev.Participant.UserID {
				v.Participants = append(v.Participants[:i:i], v.Participants[i+1:]...)
				return true
			}
		}
		return false

	case EventClueDiscovered:
		if ev.Discovery == nil {
			return false
		}
		if _, ok := v.Discoveries[ev.Discovery.ClueIndex]; ok {
			return false
		}
		v.Discoveries[ev.Discovery.ClueIndex] = *ev.Discovery
		return true

	case EventChatPosted:
		if ev.Message == nil {
			return false
		}
		if n := len(v.Chat); n > 0 && v.Chat[n-1].Sequence >= ev.Message.Sequence {
			return false
		}
		v.Chat = append(v.Chat, *ev.Message)
		return true

	case EventPhaseChanged:
		if ev.Phase == nil || v.Room.Phase == ev.Phase.To {
			return false
		}
		v.Room.Phase = ev.Phase.To
		return true

	case EventCaseSolved:
		if ev.Solved == nil || v.Room.SolvedBy != "" {
			return false
		}
		at := ev.Solved.SolvedAt
		v.Room.SolvedBy = ev.Solved.UserID
		v.Room.SolvedAt = &at
		return true
	}
	return false
}

func (v *RoomView) hasParticipant(userID string) bool {
	for _, p := range v.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// DiscoveredIndices 回傳遞增排序的已揭露線索索引
func (v *RoomView) DiscoveredIndices() []int {
	out := make([]int, 0, len(v.Discoveries))
	for idx := range v.Discoveries {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
