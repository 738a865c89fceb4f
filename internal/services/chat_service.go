package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"chromechat-service/internal/models"
	"chromechat-service/internal/observability"
	"chromechat-service/internal/repositories"
)

// ChatService owns chat creation, message delivery and unread counters.
type ChatService struct {
	base
	now   func() time.Time
	newID func() string
}

func NewChatService(store repositories.Store) *ChatService {
	return &ChatService{
		base:  newBase(store),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// DeriveChatID is stable under argument order.
func (s *ChatService) DeriveChatID(userA, userB string) string {
	return models.ChatID(userA, userB)
}

// EnsureChatExists creates the pair's chat with zero counters unless it
// already exists. An existing chat is left untouched.
func (s *ChatService) EnsureChatExists(ctx context.Context, userA, userB string) (string, bool, error) {
	if userA == userB {
		return "", false, ErrSelfChat
	}
	chat := models.NewChat(userA, userB, s.now().UTC())
	created, err := createChatIfAbsent(ctx, s.store.Chats(), chat)
	if err != nil {
		return "", false, storeErr("ensure chat", err)
	}
	return chat.ID, created, nil
}

// StartChat opens the chat between callerID and one of their friends.
func (s *ChatService) StartChat(ctx context.Context, callerID, friendID string) (models.Chat, error) {
	ctx, span := tracer.Start(ctx, "ChatService.StartChat")
	defer span.End()

	if callerID == friendID {
		return models.Chat{}, ErrSelfChat
	}
	caller, err := s.store.Users().Get(ctx, callerID)
	if err != nil {
		return models.Chat{}, storeErr("load user", err)
	}
	if !caller.HasFriend(friendID) {
		return models.Chat{}, ErrNotFriends
	}

	chatID, created, err := s.EnsureChatExists(ctx, callerID, friendID)
	if err != nil {
		return models.Chat{}, err
	}
	chat, err := s.store.Chats().Get(ctx, chatID)
	if err != nil {
		return models.Chat{}, storeErr("load chat", err)
	}
	if created {
		s.notifyUsers(models.Event{Type: models.EventChatCreated, ChatID: chatID, Chat: &chat}, callerID, friendID)
	}
	return chat, nil
}

// ListChats returns the caller's chats with partner presence and the
// caller's unread count.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	chats, err := s.store.Chats().ListForUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list chats", err)
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{
			ChatID:   chat.ID,
			FriendID: chat.PartnerOf(userID),
			Unread:   chat.UnreadCount[userID],
		}
		if friend, err := s.store.Users().Get(ctx, summary.FriendID); err == nil {
			summary.FriendUsername = friend.Username
			summary.FriendActive = friend.IsActive
			summary.FriendLastSeen = friend.LastSeen
		} else {
			log.Printf("chat summary partner lookup failed: chat_id=%s friend_id=%s err=%v", chat.ID, summary.FriendID, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Chat returns the chat after checking that callerID participates in it.
func (s *ChatService) Chat(ctx context.Context, callerID, chatID string) (models.Chat, error) {
	return s.authorize(ctx, callerID, chatID, "chat.read")
}

func (s *ChatService) ListMessages(ctx context.Context, callerID, chatID string) ([]models.Message, error) {
	if _, err := s.authorize(ctx, callerID, chatID, "messages.list"); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().List(ctx, chatID)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	return msgs, nil
}

// SendMessage stores the message and bumps the partner's unread counter
// unless the partner is online with this chat open. When the partner's
// presence cannot be read the counter is incremented.
func (s *ChatService) SendMessage(ctx context.Context, senderID, chatID, text string) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "ChatService.SendMessage")
	defer span.End()
	span.SetAttributes(attribute.String("chat_id", chatID), attribute.String("sender_id", senderID))

	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	chat, err := s.authorize(ctx, senderID, chatID, "messages.create")
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.store.Messages().Create(ctx, models.Message{
		ID:       s.newID(),
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
		Read:     false,
	})
	if err != nil {
		return models.Message{}, storeErr("create message", err)
	}
	observability.IncMessageSent()
	s.notifier.Publish(models.ChatTopic(chatID), models.Event{Type: models.EventMessage, ChatID: chatID, Message: &msg})

	recipientID := chat.PartnerOf(senderID)
	if s.bumpUnread(ctx, chatID, recipientID) {
		if updated, err := s.store.Chats().Get(ctx, chatID); err == nil {
			s.notifyUsers(models.Event{Type: models.EventChatUpdated, ChatID: chatID, Chat: &updated}, recipientID)
		}
	}

	observability.PublishDomainEvent(ctx, "message_sent", map[string]string{
		"chat_id":    chatID,
		"message_id": msg.ID,
		"sender_id":  senderID,
	})
	return msg, nil
}

func (s *ChatService) bumpUnread(ctx context.Context, chatID, recipientID string) bool {
	recipient, err := s.store.Users().Get(ctx, recipientID)
	switch {
	case err != nil:
		log.Printf("unread presence check failed, incrementing: chat_id=%s recipient_id=%s err=%v", chatID, recipientID, err)
	case recipient.IsViewing(chatID):
		observability.IncUnreadUpdate("suppressed")
		return false
	}

	if err := s.store.Chats().IncrementUnread(ctx, chatID, recipientID); err != nil {
		observability.IncUnreadUpdate("failed")
		log.Printf("unread increment failed: chat_id=%s recipient_id=%s err=%v", chatID, recipientID, err)
		return false
	}
	observability.IncUnreadUpdate("incremented")
	return true
}

// MarkRead zeroes the caller's unread counter. No write happens when the
// counter is already zero. It reports whether the counter changed.
func (s *ChatService) MarkRead(ctx context.Context, userID, chatID string) (bool, error) {
	chat, err := s.authorize(ctx, userID, chatID, "chat.mark_read")
	if err != nil {
		return false, err
	}
	if chat.UnreadCount[userID] == 0 {
		return false, nil
	}

	changed, err := s.store.Chats().ResetUnread(ctx, chatID, userID)
	if err != nil {
		return false, storeErr("reset unread", err)
	}
	if changed {
		chat.UnreadCount[userID] = 0
		s.notifyUsers(models.Event{Type: models.EventChatUpdated, ChatID: chatID, Chat: &chat}, userID)
	}
	return changed, nil
}

// ClearChat deletes every message of the chat and leaves the chat
// document itself untouched.
func (s *ChatService) ClearChat(ctx context.Context, callerID, chatID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "ChatService.ClearChat")
	defer span.End()

	if _, err := s.authorize(ctx, callerID, chatID, "messages.clear"); err != nil {
		return 0, err
	}
	deleted, err := s.store.Messages().DeleteAll(ctx, chatID)
	if err != nil {
		return 0, storeErr("clear chat", err)
	}
	if deleted > 0 {
		s.notifier.Publish(models.ChatTopic(chatID), models.Event{Type: models.EventCleared, ChatID: chatID})
	}
	return deleted, nil
}

func (s *ChatService) authorize(ctx context.Context, callerID, chatID, op string) (models.Chat, error) {
	chat, err := s.store.Chats().Get(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, err
	}
	if err != nil {
		return models.Chat{}, storeErr("load chat", err)
	}
	if !chat.HasParticipant(callerID) {
		return models.Chat{}, s.deny(ctx, callerID, op, models.ChatPath(chatID), nil)
	}
	return chat, nil
}

// createChatIfAbsent creates chat unless its id exists. An existing chat
// must belong to the same pair: ids containing the separator can make two
// pairs derive one id.
func createChatIfAbsent(ctx context.Context, chats repositories.ChatRepository, chat models.Chat) (bool, error) {
	created, err := chats.CreateIfAbsent(ctx, chat)
	if err != nil || created {
		return created, err
	}
	existing, err := chats.Get(ctx, chat.ID)
	if err != nil {
		return false, err
	}
	if !samePair(existing.ParticipantIDs, chat.ParticipantIDs) {
		return false, fmt.Errorf("%w: %s held by %s", ErrChatIDConflict, chat.ID, strings.Join(existing.ParticipantIDs, ","))
	}
	return false, nil
}

func samePair(a, b []string) bool {
	if len(a) != 2 || len(b) != 2 {
		return false
	}
	a = models.SortedPair(a[0], a[1])
	b = models.SortedPair(b[0], b[1])
	return a[0] == b[0] && a[1] == b[1]
}
