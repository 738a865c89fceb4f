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

type userRow struct {
	ID           string         `db:"id"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	FriendIDs    pq.StringArray `db:"friend_ids"`
	IsActive     bool           `db:"is_active"`
	LastSeen     time.Time      `db:"last_seen"`
	ActiveChatID sql.NullString `db:"active_chat_id"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r userRow) toModel() models.User {
	user := models.User{
		ID:        r.ID,
		Username:  r.Username,
		Email:     r.Email,
		FriendIDs: []string(r.FriendIDs),
		IsActive:  r.IsActive,
		LastSeen:  r.LastSeen,
		CreatedAt: r.CreatedAt,
	}
	if user.FriendIDs == nil {
		user.FriendIDs = []string{}
	}
	if r.ActiveChatID.Valid {
		chatID := r.ActiveChatID.String
		user.ActiveChatID = &chatID
	}
	return user
}

const userColumns = `id, username, email, friend_ids, is_active, last_seen, active_chat_id, created_at`

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db sqlx.ExtContext
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db sqlx.ExtContext) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts the user if absent.
func (r *UserRepo) Create(ctx context.Context, user models.User) (bool, error) {
	if err := models.Validate(user); err != nil {
		return false, err
	}
	friendIDs := user.FriendIDs
	if friendIDs == nil {
		friendIDs = []string{}
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (id, username, email, friend_ids, is_active, last_seen, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Username, user.Email, pq.StringArray(friendIDs), user.IsActive, user.LastSeen, user.CreatedAt)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return row.toModel(), nil
}

// List returns every user ordered by username.
func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT `+userColumns+` FROM users ORDER BY username ASC`); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toModel())
	}
	return users, nil
}

// AddFriend appends friendID to the friend list unless already present.
func (r *UserRepo) AddFriend(ctx context.Context, userID string, friendID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET friend_ids = CASE
            WHEN $2 = ANY(friend_ids) THEN friend_ids
            ELSE array_append(friend_ids, $2::text) END
        WHERE id=$1`, userID, friendID)
	return expectRow(res, err, ErrUserNotFound)
}

// RemoveFriend drops friendID from the friend list.
func (r *UserRepo) RemoveFriend(ctx context.Context, userID string, friendID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET friend_ids = array_remove(friend_ids, $2::text) WHERE id=$1`, userID, friendID)
	return expectRow(res, err, ErrUserNotFound)
}

// UpdatePresence applies a field-level presence patch.
func (r *UserRepo) UpdatePresence(ctx context.Context, userID string, update models.PresenceUpdate) error {
	var isActive sql.NullBool
	if update.IsActive != nil {
		isActive = sql.NullBool{Bool: *update.IsActive, Valid: true}
	}
	var lastSeen sql.NullTime
	if !update.LastSeen.IsZero() {
		lastSeen = sql.NullTime{Time: update.LastSeen, Valid: true}
	}
	var activeChat sql.NullString
	if update.ActiveChatID != nil {
		activeChat = sql.NullString{String: *update.ActiveChatID, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `UPDATE users SET
            is_active = COALESCE($2, is_active),
            last_seen = COALESCE($3, last_seen),
            active_chat_id = CASE WHEN $5 THEN NULL ELSE COALESCE($4, active_chat_id) END
        WHERE id=$1`, userID, isActive, lastSeen, activeChat, update.ClearActiveChat)
	return expectRow(res, err, ErrUserNotFound)
}

func expectRow(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
