package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage"
)

const messageCols = `m.id, m.room_id, m.sender_id, u.nickname, m.content, m.msg_type, m.is_deleted, m.created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderNickname, &m.Content, &m.Type, &m.IsDeleted, &m.CreatedAt)
}

// Append assigns id and created_at at the database, defining the canonical
// (created_at, id) sequence for the room.
func (r *MessageRepository) Append(ctx context.Context, msg *model.Message) error {
	defer logger.DeferLogDuration("msg.Append", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (room_id, sender_id, content, msg_type, is_deleted, created_at)
		 VALUES ($1, $2, $3, $4, false, now())
		 RETURNING id, created_at`,
		msg.RoomID, msg.SenderID, msg.Content, msg.Type,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("msgRepo.Append: %w", err)
	}
	return nil
}

// Recent fetches the newest limit rows and reverses them, so the caller
// always sees ascending canonical order.
func (r *MessageRepository) Recent(ctx context.Context, roomID int64, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Recent", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+`
		 FROM chat_messages m JOIN users u ON u.id = m.sender_id
		 WHERE m.room_id = $1 AND m.is_deleted = false
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Recent query: %w", err)
	}
	defer rows.Close()
	msgs, err := collectMessages(rows, "Recent")
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepository) Since(ctx context.Context, roomID int64, since time.Time) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Since", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+`
		 FROM chat_messages m JOIN users u ON u.id = m.sender_id
		 WHERE m.room_id = $1 AND m.is_deleted = false AND m.created_at >= $2
		 ORDER BY m.created_at, m.id`, roomID, since)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Since query: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows, "Since")
}

// SoftDelete marks a message as deleted; the row is kept so the canonical
// sequence of the room stays intact.
func (r *MessageRepository) SoftDelete(ctx context.Context, id int64) error {
	defer logger.DeferLogDuration("msg.SoftDelete", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_messages SET is_deleted = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("msgRepo.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func collectMessages(rows pgx.Rows, op string) ([]model.Message, error) {
	msgs := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.%s scan: %w", op, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.%s rows: %w", op, err)
	}
	return msgs, nil
}
