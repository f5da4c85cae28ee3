package model

import "time"

type RoomType string

const (
	RoomTypePublic  RoomType = "PUBLIC"
	RoomTypePrivate RoomType = "PRIVATE"
	RoomTypeDirect  RoomType = "DIRECT"
)

// Room limits. maxParticipants must stay within [MinRoomCapacity, MaxRoomCapacity].
const (
	MaxRoomNameLen        = 100
	MaxRoomDescriptionLen = 500
	MinRoomCapacity       = 2
	MaxRoomCapacity       = 100
	DefaultRoomCapacity   = 50
)

// Room is a named, capacity-bounded chat channel.
// current_participants is mutated only by join/leave, never directly.
type Room struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	Type                RoomType  `json:"type"`
	CreatorID           string    `json:"creator_id"`
	CreatorNickname     string    `json:"creator_nickname,omitempty"`
	IsActive            bool      `json:"is_active"`
	MaxParticipants     int       `json:"max_participants"`
	CurrentParticipants int       `json:"current_participants"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RoomList is the list-active response shape.
type RoomList struct {
	Rooms      []Room `json:"rooms"`
	TotalCount int    `json:"total_count"`
}
