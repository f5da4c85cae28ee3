// Package chat implements the room registry and message store semantics on
// top of the storage interfaces: input validation before any write, creator
// auto-join, capacity-bounded join/leave and the canonical message order.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage"
)

const DefaultHistoryLimit = 50

type Service struct {
	rooms    storage.RoomStore
	messages storage.MessageStore
	users    storage.UserStore
}

func NewService(rooms storage.RoomStore, messages storage.MessageStore, users storage.UserStore) *Service {
	return &Service{rooms: rooms, messages: messages, users: users}
}

// CreateRoomRequest is the validated create-room input. Zero values fall
// back to a PUBLIC room with the default capacity.
type CreateRoomRequest struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Type            model.RoomType `json:"type"`
	MaxParticipants int            `json:"max_participants"`
}

// CreateRoom persists a room with the creator as its first participant.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest, creatorID string) (*model.Room, error) {
	defer logger.DeferLogDuration("chat.CreateRoom", time.Now())()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be blank"}
	}
	if utf8.RuneCountInString(name) > model.MaxRoomNameLen {
		return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", model.MaxRoomNameLen)}
	}
	if utf8.RuneCountInString(req.Description) > model.MaxRoomDescriptionLen {
		return nil, &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", model.MaxRoomDescriptionLen)}
	}
	roomType := req.Type
	if roomType == "" {
		roomType = model.RoomTypePublic
	}
	switch roomType {
	case model.RoomTypePublic, model.RoomTypePrivate, model.RoomTypeDirect:
	default:
		return nil, &ValidationError{Field: "type", Reason: "must be PUBLIC, PRIVATE or DIRECT"}
	}
	capacity := req.MaxParticipants
	if capacity == 0 {
		capacity = model.DefaultRoomCapacity
	}
	if capacity < model.MinRoomCapacity || capacity > model.MaxRoomCapacity {
		return nil, &ValidationError{
			Field:  "max_participants",
			Reason: fmt.Sprintf("must be between %d and %d", model.MinRoomCapacity, model.MaxRoomCapacity),
		}
	}

	creator, err := s.users.GetByID(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("chat.CreateRoom lookup creator: %w", err)
	}

	room := &model.Room{
		Name:                name,
		Description:         strings.TrimSpace(req.Description),
		Type:                roomType,
		CreatorID:           creator.ID,
		CreatorNickname:     creator.Nickname,
		IsActive:            true,
		MaxParticipants:     capacity,
		CurrentParticipants: 1, // the creator is the first participant
		CreatedAt:           time.Now().UTC(),
	}
	room.UpdatedAt = room.CreatedAt
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("chat.CreateRoom: %w", err)
	}
	logger.Infof("room created: %q (id=%d) by %s", room.Name, room.ID, creator.ID)
	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	return s.rooms.GetActive(ctx, roomID)
}

func (s *Service) ListActiveRooms(ctx context.Context) ([]model.Room, error) {
	return s.rooms.ListActive(ctx)
}

func (s *Service) ListRoomsByCreator(ctx context.Context, creatorID string) ([]model.Room, error) {
	return s.rooms.ListByCreator(ctx, creatorID)
}

// JoinRoom increments the participant counter; storage.ErrRoomFull when the
// room is at capacity, storage.ErrNotFound when missing or inactive.
func (s *Service) JoinRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	room, err := s.rooms.Join(ctx, roomID)
	if err != nil {
		return nil, err
	}
	logger.Infof("user joined room %d, participants now %d", roomID, room.CurrentParticipants)
	return room, nil
}

// LeaveRoom decrements the participant counter; leaving an empty room is a
// harmless no-op, never an error.
func (s *Service) LeaveRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	room, err := s.rooms.Leave(ctx, roomID)
	if err != nil {
		return nil, err
	}
	logger.Infof("user left room %d, participants now %d", roomID, room.CurrentParticipants)
	return room, nil
}

// AppendMessage validates content and the room before any write, then
// persists the message bound to the authenticated sender.
func (s *Service) AppendMessage(ctx context.Context, roomID int64, senderID, content string, msgType model.MessageType) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.AppendMessage", time.Now())()
	if content == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(content) > model.MaxMessageContentLen {
		return nil, &ValidationError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", model.MaxMessageContentLen)}
	}
	switch msgType {
	case model.MessageTypeChat, model.MessageTypeJoin, model.MessageTypeLeave, model.MessageTypeSystem:
	default:
		return nil, &ValidationError{Field: "type", Reason: "unknown message type"}
	}

	// The room must be active; a deactivated room takes no new messages.
	if _, err := s.rooms.GetActive(ctx, roomID); err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("chat.AppendMessage lookup sender: %w", err)
	}

	msg := &model.Message{
		RoomID:         roomID,
		SenderID:       sender.ID,
		SenderNickname: sender.Nickname,
		Content:        content,
		Type:           msgType,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentMessages returns at most limit non-deleted messages in ascending
// canonical order; limit is clamped to [1, 100].
func (s *Service) RecentMessages(ctx context.Context, roomID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > 100 {
		limit = 100
	}
	if _, err := s.rooms.GetActive(ctx, roomID); err != nil {
		return nil, err
	}
	return s.messages.Recent(ctx, roomID, limit)
}

// MessagesSince returns non-deleted messages with created_at >= since.
func (s *Service) MessagesSince(ctx context.Context, roomID int64, since time.Time) ([]model.Message, error) {
	if _, err := s.rooms.GetActive(ctx, roomID); err != nil {
		return nil, err
	}
	return s.messages.Since(ctx, roomID, since)
}

// DeleteMessage is the reserved moderation path: soft delete only.
func (s *Service) DeleteMessage(ctx context.Context, messageID int64) error {
	return s.messages.SoftDelete(ctx, messageID)
}

// LookupUser decorates responses with the author identity.
func (s *Service) LookupUser(ctx context.Context, id string) (*model.UserPublic, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pub := u.ToPublic()
	return &pub, nil
}
