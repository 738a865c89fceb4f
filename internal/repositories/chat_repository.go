package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chromechat-service/internal/models"
)

type chatRow struct {
	ID             string         `db:"id"`
	ParticipantIDs pq.StringArray `db:"participant_ids"`
	CreatedAt      time.Time      `db:"created_at"`
}

type unreadRow struct {
	ChatID string `db:"chat_id"`
	UserID string `db:"user_id"`
	Count  int    `db:"count"`
}

// ChatRepo is a sqlx implementation of ChatRepository. Unread counters live
// one row per (chat, participant) so each counter is updated in place.
type ChatRepo struct {
	db sqlx.ExtContext
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db sqlx.ExtContext) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateIfAbsent inserts the chat and its zeroed counters in one statement.
func (r *ChatRepo) CreateIfAbsent(ctx context.Context, chat models.Chat) (bool, error) {
	if err := models.Validate(chat); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `WITH ins AS (
            INSERT INTO chats (id, participant_ids, created_at) VALUES ($1, $2, $3)
            ON CONFLICT (id) DO NOTHING
            RETURNING id
        )
        INSERT INTO chat_unread (chat_id, user_id, count)
        SELECT ins.id, p.user_id, 0 FROM ins, unnest($2::text[]) AS p(user_id)`,
		chat.ID, pq.StringArray(chat.ParticipantIDs), chat.CreatedAt)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// Get fetches a chat by id.
func (r *ChatRepo) Get(ctx context.Context, chatID string) (models.Chat, error) {
	var row chatRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT id, participant_ids, created_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	chats, err := r.attachUnread(ctx, []chatRow{row})
	if err != nil {
		return models.Chat{}, err
	}
	return chats[0], nil
}

// ListForUser returns chats where the user is a participant.
func (r *ChatRepo) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var rows []chatRow
	err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT id, participant_ids, created_at FROM chats
        WHERE $1 = ANY(participant_ids) ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return r.attachUnread(ctx, rows)
}

func (r *ChatRepo) attachUnread(ctx context.Context, rows []chatRow) ([]models.Chat, error) {
	chats := make([]models.Chat, 0, len(rows))
	if len(rows) == 0 {
		return chats, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var counters []unreadRow
	if err := sqlx.SelectContext(ctx, r.db, &counters, `SELECT chat_id, user_id, count FROM chat_unread WHERE chat_id = ANY($1)`, pq.StringArray(ids)); err != nil {
		return nil, err
	}
	byChat := map[string]map[string]int{}
	for _, c := range counters {
		if byChat[c.ChatID] == nil {
			byChat[c.ChatID] = map[string]int{}
		}
		byChat[c.ChatID][c.UserID] = c.Count
	}

	for _, row := range rows {
		unread := byChat[row.ID]
		if unread == nil {
			unread = map[string]int{}
		}
		chats = append(chats, models.Chat{
			ID:             row.ID,
			ParticipantIDs: []string(row.ParticipantIDs),
			UnreadCount:    unread,
			CreatedAt:      row.CreatedAt,
		})
	}
	return chats, nil
}

// IncrementUnread adds one to the participant's counter.
func (r *ChatRepo) IncrementUnread(ctx context.Context, chatID string, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_unread SET count = count + 1 WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return expectRow(res, err, ErrChatNotFound)
}

// ResetUnread zeroes the participant's counter when it is nonzero.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID string, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_unread SET count = 0 WHERE chat_id=$1 AND user_id=$2 AND count <> 0`, chatID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, `SELECT EXISTS(SELECT 1 FROM chat_unread WHERE chat_id=$1 AND user_id=$2)`, chatID, userID); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrChatNotFound
	}
	return false, nil
}

// Delete removes the chat document; counters and messages cascade.
func (r *ChatRepo) Delete(ctx context.Context, chatID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	return expectRow(res, err, ErrChatNotFound)
}
