package services

import (
	"context"
	"time"

	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories"
)

const assistantUsername = "ChromeBot"

type UserService struct {
	base
	now func() time.Time
}

func NewUserService(store repositories.Store) *UserService {
	return &UserService{base: newBase(store), now: time.Now}
}

// EnsureAssistant creates the assistant's user document if it is missing.
func (s *UserService) EnsureAssistant(ctx context.Context) error {
	now := s.now().UTC()
	_, err := s.store.Users().Create(ctx, models.User{
		ID:        models.AssistantUserID,
		Username:  assistantUsername,
		FriendIDs: []string{},
		IsActive:  true,
		LastSeen:  now,
		CreatedAt: now,
	})
	return storeErr("create assistant", err)
}

// Register bootstraps the profile of an authenticated identity. Calling
// it again for an existing user returns the stored profile unchanged.
// New users are befriended with the assistant.
func (s *UserService) Register(ctx context.Context, userID, username, email string) (models.User, bool, error) {
	ctx, span := tracer.Start(ctx, "UserService.Register")
	defer span.End()

	if userID == models.AssistantUserID {
		return models.User{}, false, s.deny(ctx, userID, "users.create", "users/"+userID, nil)
	}

	now := s.now().UTC()
	created, err := s.store.Users().Create(ctx, models.User{
		ID:        userID,
		Username:  username,
		Email:     email,
		FriendIDs: []string{},
		IsActive:  true,
		LastSeen:  now,
		CreatedAt: now,
	})
	if err != nil {
		return models.User{}, false, storeErr("create user", err)
	}

	if created {
		if err := s.befriendAssistant(ctx, userID); err != nil {
			return models.User{}, true, err
		}
	}

	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return models.User{}, created, storeErr("load user", err)
	}
	return user, created, nil
}

func (s *UserService) befriendAssistant(ctx context.Context, userID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		if _, err := createChatIfAbsent(ctx, tx.Chats(), models.NewChat(userID, models.AssistantUserID, s.now().UTC())); err != nil {
			return err
		}
		if err := tx.Users().AddFriend(ctx, userID, models.AssistantUserID); err != nil {
			return err
		}
		return tx.Users().AddFriend(ctx, models.AssistantUserID, userID)
	})
	return storeErr("befriend assistant", err)
}

func (s *UserService) Get(ctx context.Context, userID string) (models.User, error) {
	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return models.User{}, storeErr("load user", err)
	}
	return user, nil
}

// List returns the user directory used for friend discovery.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return users, nil
}
