package services

import (
	"context"
	"errors"
	"log"
	"time"

	"chromechat-service/internal/models"
	"chromechat-service/internal/observability"
	"chromechat-service/internal/repositories"
)

// PresenceService writes presence fields. Every write targets the caller's
// own user document.
type PresenceService struct {
	base
	now func() time.Time
}

func NewPresenceService(store repositories.Store) *PresenceService {
	return &PresenceService{base: newBase(store), now: time.Now}
}

func (s *PresenceService) GoOnline(ctx context.Context, userID string) error {
	return s.setActive(ctx, userID, true)
}

func (s *PresenceService) GoOffline(ctx context.Context, userID string) error {
	return s.setActive(ctx, userID, false)
}

func (s *PresenceService) setActive(ctx context.Context, userID string, active bool) error {
	state := "offline"
	if active {
		state = "online"
	}

	err := s.store.Users().UpdatePresence(ctx, userID, models.PresenceUpdate{
		IsActive: &active,
		LastSeen: s.now().UTC(),
	})
	if err != nil {
		observability.IncPresenceWrite(state, "error")
		return storeErr("update presence", err)
	}
	observability.IncPresenceWrite(state, "ok")

	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil
	}
	s.notifyUsers(models.Event{Type: models.EventPresence, UserID: userID, IsActive: &active}, user.FriendIDs...)
	return nil
}

// SetActiveChat records which chat the user has focused and zeroes the
// user's unread counter of that chat. An empty chatID clears the field.
func (s *PresenceService) SetActiveChat(ctx context.Context, userID, chatID string) error {
	var chat models.Chat
	update := models.PresenceUpdate{ClearActiveChat: chatID == ""}
	if chatID != "" {
		var err error
		chat, err = s.store.Chats().Get(ctx, chatID)
		if errors.Is(err, repositories.ErrChatNotFound) {
			return err
		}
		if err != nil {
			return storeErr("load chat", err)
		}
		if !chat.HasParticipant(userID) {
			return s.deny(ctx, userID, "presence.active_chat", models.ChatPath(chatID), map[string]string{"active_chat_id": chatID})
		}
		update.ActiveChatID = &chatID
	}

	if err := s.store.Users().UpdatePresence(ctx, userID, update); err != nil {
		observability.IncPresenceWrite("active_chat", "error")
		return storeErr("update active chat", err)
	}
	observability.IncPresenceWrite("active_chat", "ok")

	if chatID != "" && chat.UnreadCount[userID] > 0 {
		s.resetUnread(ctx, chat, userID)
	}
	return nil
}

// resetUnread is best effort: the focus is already recorded and a failed
// reset leaves the badge for the next read.
func (s *PresenceService) resetUnread(ctx context.Context, chat models.Chat, userID string) {
	changed, err := s.store.Chats().ResetUnread(ctx, chat.ID, userID)
	if err != nil {
		log.Printf("reset unread on chat select failed: chat_id=%s user_id=%s err=%v", chat.ID, userID, err)
		return
	}
	if changed {
		chat.UnreadCount[userID] = 0
		s.notifyUsers(models.Event{Type: models.EventChatUpdated, ChatID: chat.ID, Chat: &chat}, userID)
	}
}

func (s *PresenceService) Get(ctx context.Context, userID string) (models.User, error) {
	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return models.User{}, storeErr("load user", err)
	}
	return user, nil
}
