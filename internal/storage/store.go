// Package storage declares the persistence interfaces the chat core runs on.
// Implementations: repository (pgx/Postgres), memory (for -mem mode and tests),
// redis (login limiter).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/portfolio/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrRoomFull  = errors.New("room is full")
	ErrDuplicate = errors.New("already exists")
)

// RoomStore owns chat_rooms. Join must perform its capacity check and the
// increment as one indivisible step; callers never read-then-write the counter.
type RoomStore interface {
	Create(ctx context.Context, room *model.Room) error
	GetActive(ctx context.Context, id int64) (*model.Room, error)
	ListActive(ctx context.Context) ([]model.Room, error)
	ListByCreator(ctx context.Context, creatorID string) ([]model.Room, error)
	// Join atomically verifies is_active && current < max and increments.
	// Returns ErrNotFound for a missing/inactive room, ErrRoomFull at capacity.
	Join(ctx context.Context, id int64) (*model.Room, error)
	// Leave atomically decrements if current > 0; at zero it is a no-op.
	Leave(ctx context.Context, id int64) (*model.Room, error)
	Deactivate(ctx context.Context, id int64) error
}

// MessageStore owns chat_messages, append-only plus soft delete.
type MessageStore interface {
	// Append assigns id and created_at at write time, defining the
	// canonical (created_at, id) sequence.
	Append(ctx context.Context, msg *model.Message) error
	// Recent returns the newest limit non-deleted messages in ascending
	// canonical order.
	Recent(ctx context.Context, roomID int64, limit int) ([]model.Message, error)
	// Since returns non-deleted messages with created_at >= since, ascending.
	Since(ctx context.Context, roomID int64, since time.Time) ([]model.Message, error)
	SoftDelete(ctx context.Context, id int64) error
}

// UserStore is the identity collaborator: only what the chat core needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// LoginLimiter bounds login attempts per key (email) in a sliding window.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}
