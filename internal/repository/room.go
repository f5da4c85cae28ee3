package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage"
)

const roomCols = `r.id, r.name, COALESCE(r.description,''), r.room_type, r.creator_id, u.nickname,
	r.is_active, r.max_participants, r.current_participants, r.created_at, r.updated_at`

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(s interface{ Scan(dest ...any) error }, r *model.Room) error {
	return s.Scan(&r.ID, &r.Name, &r.Description, &r.Type, &r.CreatorID, &r.CreatorNickname,
		&r.IsActive, &r.MaxParticipants, &r.CurrentParticipants, &r.CreatedAt, &r.UpdatedAt)
}

func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	defer logger.DeferLogDuration("room.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_rooms (name, description, room_type, creator_id, is_active, max_participants, current_participants, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING id`,
		room.Name, room.Description, room.Type, room.CreatorID, room.IsActive,
		room.MaxParticipants, room.CurrentParticipants, room.CreatedAt,
	).Scan(&room.ID)
	if err != nil {
		return fmt.Errorf("roomRepo.Create: %w", err)
	}
	return nil
}

func (r *RoomRepository) GetActive(ctx context.Context, id int64) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetActive", time.Now())()
	room := &model.Room{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+roomCols+` FROM chat_rooms r JOIN users u ON u.id = r.creator_id
		 WHERE r.id = $1 AND r.is_active`, id)
	if err := scanRoom(row, room); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("roomRepo.GetActive: %w", err)
	}
	return room, nil
}

func (r *RoomRepository) ListActive(ctx context.Context) ([]model.Room, error) {
	defer logger.DeferLogDuration("room.ListActive", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+roomCols+` FROM chat_rooms r JOIN users u ON u.id = r.creator_id
		 WHERE r.is_active ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListActive query: %w", err)
	}
	defer rows.Close()
	return collectRooms(rows, "ListActive")
}

func (r *RoomRepository) ListByCreator(ctx context.Context, creatorID string) ([]model.Room, error) {
	defer logger.DeferLogDuration("room.ListByCreator", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+roomCols+` FROM chat_rooms r JOIN users u ON u.id = r.creator_id
		 WHERE r.creator_id = $1 AND r.is_active ORDER BY r.created_at DESC, r.id DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListByCreator query: %w", err)
	}
	defer rows.Close()
	return collectRooms(rows, "ListByCreator")
}

// Join performs the capacity check and the increment in one conditional
// UPDATE, so concurrent joins can never push the counter past the cap.
func (r *RoomRepository) Join(ctx context.Context, id int64) (*model.Room, error) {
	defer logger.DeferLogDuration("room.Join", time.Now())()
	for attempt := 0; attempt < 3; attempt++ {
		room := &model.Room{}
		row := r.pool.QueryRow(ctx,
			`WITH updated AS (
			   UPDATE chat_rooms SET current_participants = current_participants + 1, updated_at = now()
			   WHERE id = $1 AND is_active AND current_participants < max_participants
			   RETURNING *
			 )
			 SELECT `+roomCols+` FROM updated r JOIN users u ON u.id = r.creator_id`, id)
		err := scanRoom(row, room)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roomRepo.Join: %w", err)
		}
		// No row updated: distinguish a full room from a missing/inactive one.
		var full bool
		err = r.pool.QueryRow(ctx,
			`SELECT current_participants >= max_participants FROM chat_rooms WHERE id = $1 AND is_active`, id,
		).Scan(&full)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("roomRepo.Join check: %w", err)
		}
		if full {
			return nil, storage.ErrRoomFull
		}
		// A slot freed up between the UPDATE and the check; retry the UPDATE.
	}
	return nil, storage.ErrRoomFull
}

// Leave decrements the counter if positive; leaving an empty room is a no-op.
func (r *RoomRepository) Leave(ctx context.Context, id int64) (*model.Room, error) {
	defer logger.DeferLogDuration("room.Leave", time.Now())()
	room := &model.Room{}
	row := r.pool.QueryRow(ctx,
		`WITH updated AS (
		   UPDATE chat_rooms
		   SET current_participants = GREATEST(current_participants - 1, 0), updated_at = now()
		   WHERE id = $1 AND is_active
		   RETURNING *
		 )
		 SELECT `+roomCols+` FROM updated r JOIN users u ON u.id = r.creator_id`, id)
	if err := scanRoom(row, room); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("roomRepo.Leave: %w", err)
	}
	return room, nil
}

func (r *RoomRepository) Deactivate(ctx context.Context, id int64) error {
	defer logger.DeferLogDuration("room.Deactivate", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("roomRepo.Deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func collectRooms(rows pgx.Rows, op string) ([]model.Room, error) {
	rooms := make([]model.Room, 0, 16)
	for rows.Next() {
		var room model.Room
		if err := scanRoom(rows, &room); err != nil {
			return nil, fmt.Errorf("roomRepo.%s scan: %w", op, err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.%s rows: %w", op, err)
	}
	return rooms, nil
}
