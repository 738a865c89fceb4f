package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLStore is the Postgres implementation of Store.
type SQLStore struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

// NewSQLStore constructs a SQLStore.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, ext: db}
}

func (s *SQLStore) Users() UserRepository                   { return NewUserRepo(s.ext) }
func (s *SQLStore) FriendRequests() FriendRequestRepository { return NewFriendRequestRepo(s.ext) }
func (s *SQLStore) Chats() ChatRepository                   { return NewChatRepo(s.ext) }
func (s *SQLStore) Messages() MessageRepository             { return NewMessageRepo(s.ext) }

// WithinTx runs fn inside a single database transaction.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.db == nil {
		// already inside a transaction
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &SQLStore{ext: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
