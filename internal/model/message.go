package model

import "time"

type MessageType string

const (
	MessageTypeChat   MessageType = "CHAT"
	MessageTypeJoin   MessageType = "JOIN"
	MessageTypeLeave  MessageType = "LEAVE"
	MessageTypeSystem MessageType = "SYSTEM"
)

const MaxMessageContentLen = 1000

// Message is one chat message. Immutable after creation except the
// soft-delete flag; canonical order is (created_at, id) ascending; the
// bigserial id breaks ties between same-timestamp writes to a room.
type Message struct {
	ID             int64       `json:"id"`
	RoomID         int64       `json:"room_id"`
	SenderID       string      `json:"sender_id"`
	SenderNickname string      `json:"sender_nickname,omitempty"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	IsDeleted      bool        `json:"is_deleted"`
	CreatedAt      time.Time   `json:"created_at"`
}
