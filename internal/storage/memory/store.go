// Package memory implements the storage interfaces without external
// dependencies, for -mem mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage"
)

// Store holds rooms, messages and users behind one mutex. The lock makes
// Join's capacity check and increment a single critical section, matching
// the atomicity the Postgres implementation gets from its conditional UPDATE.
type Store struct {
	mu       sync.Mutex
	rooms    map[int64]*model.Room
	messages map[int64]*model.Message
	users    map[string]*model.User
	emails   map[string]string
	roomSeq  int64
	msgSeq   int64
}

func New() *Store {
	return &Store{
		rooms:    make(map[int64]*model.Room),
		messages: make(map[int64]*model.Message),
		users:    make(map[string]*model.User),
		emails:   make(map[string]string),
	}
}

func (s *Store) Create(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomSeq++
	room.ID = s.roomSeq
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *Store) GetActive(ctx context.Context, id int64) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok || !r.IsActive {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListActive(ctx context.Context) ([]model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.IsActive {
			out = append(out, *r)
		}
	}
	sortRoomsNewestFirst(out)
	return out, nil
}

func (s *Store) ListByCreator(ctx context.Context, creatorID string) ([]model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Room, 0, 8)
	for _, r := range s.rooms {
		if r.IsActive && r.CreatorID == creatorID {
			out = append(out, *r)
		}
	}
	sortRoomsNewestFirst(out)
	return out, nil
}

func (s *Store) Join(ctx context.Context, id int64) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok || !r.IsActive {
		return nil, storage.ErrNotFound
	}
	if r.CurrentParticipants >= r.MaxParticipants {
		return nil, storage.ErrRoomFull
	}
	r.CurrentParticipants++
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	return &cp, nil
}

func (s *Store) Leave(ctx context.Context, id int64) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok || !r.IsActive {
		return nil, storage.ErrNotFound
	}
	if r.CurrentParticipants > 0 {
		r.CurrentParticipants--
		r.UpdatedAt = time.Now().UTC()
	}
	cp := *r
	return &cp, nil
}

func (s *Store) Deactivate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return storage.ErrNotFound
	}
	r.IsActive = false
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Append(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return storage.ErrNotFound
	}
	s.msgSeq++
	msg.ID = s.msgSeq
	msg.CreatedAt = time.Now().UTC()
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (s *Store) Recent(ctx context.Context, roomID int64, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.roomMessagesLocked(roomID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *Store) Since(ctx context.Context, roomID int64, since time.Time) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.roomMessagesLocked(roomID)
	out := make([]model.Message, 0, len(all))
	for _, m := range all {
		if !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.IsDeleted = true
	return nil
}

// roomMessagesLocked returns non-deleted messages for a room in canonical
// (created_at, id) ascending order. Caller holds s.mu.
func (s *Store) roomMessagesLocked(roomID int64) []model.Message {
	out := make([]model.Message, 0, 32)
	for _, m := range s.messages {
		if m.RoomID == roomID && !m.IsDeleted {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[u.Email]; ok {
		return storage.ErrDuplicate
	}
	cp := *u
	s.users[u.ID] = &cp
	s.emails[u.Email] = u.ID
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func sortRoomsNewestFirst(rooms []model.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID > rooms[j].ID
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
}
