package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chromechat-service/internal/models"
)

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db sqlx.ExtContext
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db sqlx.ExtContext) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message; the timestamp is assigned by the database.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := models.Validate(msg); err != nil {
		return models.Message{}, err
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, chat_id, sender_id, text, read)
        VALUES ($1, $2, $3, $4, $5) RETURNING created_at`, msg.ID, msg.ChatID, msg.SenderID, msg.Text, msg.Read).
		Scan(&msg.Timestamp)
	if pqCode(err) == pqForeignKeyViolation {
		return models.Message{}, ErrChatNotFound
	}
	return msg, err
}

// List returns a chat's messages ordered by timestamp ascending.
func (r *MessageRepo) List(ctx context.Context, chatID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := sqlx.SelectContext(ctx, r.db, &msgs, `SELECT id, chat_id, sender_id, text, read, created_at
        FROM messages WHERE chat_id=$1 ORDER BY created_at ASC, seq ASC`, chatID)
	return msgs, err
}

// DeleteAll removes every message of a chat.
func (r *MessageRepo) DeleteAll(ctx context.Context, chatID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, chatID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
