package repositories

import (
	"context"
	"errors"

	"chromechat-service/internal/models"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrFriendRequestNotFound  = errors.New("friend request not found")
	ErrChatNotFound           = errors.New("chat not found")
	ErrDuplicateFriendRequest = errors.New("pending friend request already exists")
)

// UserRepository abstracts users/{id} documents.
type UserRepository interface {
	// Create inserts the user unless a document with the same id exists.
	Create(ctx context.Context, user models.User) (bool, error)
	Get(ctx context.Context, userID string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	// AddFriend is an array-union of friendID into the user's friend list.
	AddFriend(ctx context.Context, userID string, friendID string) error
	RemoveFriend(ctx context.Context, userID string, friendID string) error
	UpdatePresence(ctx context.Context, userID string, update models.PresenceUpdate) error
}

// FriendRequestRepository abstracts users/{recipientId}/friendRequests/{id}.
type FriendRequestRepository interface {
	Create(ctx context.Context, req models.FriendRequest) error
	Get(ctx context.Context, recipientID string, requestID string) (models.FriendRequest, error)
	ListPending(ctx context.Context, recipientID string) ([]models.FriendRequest, error)
	FindPending(ctx context.Context, requesterID string, recipientID string) (models.FriendRequest, error)
	Delete(ctx context.Context, recipientID string, requestID string) error
}

// ChatRepository abstracts chats/{id}.
type ChatRepository interface {
	// CreateIfAbsent creates the chat only when no chat with its id exists.
	CreateIfAbsent(ctx context.Context, chat models.Chat) (bool, error)
	Get(ctx context.Context, chatID string) (models.Chat, error)
	ListForUser(ctx context.Context, userID string) ([]models.Chat, error)
	// IncrementUnread atomically adds one to unreadCount[userID].
	IncrementUnread(ctx context.Context, chatID string, userID string) error
	// ResetUnread zeroes unreadCount[userID] and reports whether it was nonzero.
	ResetUnread(ctx context.Context, chatID string, userID string) (bool, error)
	Delete(ctx context.Context, chatID string) error
}

// MessageRepository abstracts chats/{chatId}/messages/{id}.
type MessageRepository interface {
	// Create stores the message with a store-assigned timestamp.
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	List(ctx context.Context, chatID string) ([]models.Message, error)
	DeleteAll(ctx context.Context, chatID string) (int64, error)
}

// Store groups the repositories of one document store backend.
type Store interface {
	Users() UserRepository
	FriendRequests() FriendRequestRepository
	Chats() ChatRepository
	Messages() MessageRepository
	// WithinTx runs fn as one all-or-nothing batch. Repositories reached
	// through tx, called with the ctx passed to fn, join the batch.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Ping(ctx context.Context) error
}
