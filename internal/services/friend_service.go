package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"chromechat-service/internal/models"
	"chromechat-service/internal/observability"
	"chromechat-service/internal/repositories"
)

var errAlreadyHandled = errors.New("friend request already handled")

// FriendService runs the friend-request state machine. Accepting executes
// every write of the transition in one store transaction.
type FriendService struct {
	base
	now   func() time.Time
	newID func() string
}

func NewFriendService(store repositories.Store) *FriendService {
	return &FriendService{
		base:  newBase(store),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// AcceptResult describes the outcome of an accept call.
type AcceptResult struct {
	ChatID         string `json:"chat_id,omitempty"`
	ChatCreated    bool   `json:"chat_created"`
	AlreadyHandled bool   `json:"already_handled"`
}

// SendFriendRequest stores a pending request under the recipient.
func (s *FriendService) SendFriendRequest(ctx context.Context, requesterID, recipientID string) (models.FriendRequest, error) {
	ctx, span := tracer.Start(ctx, "FriendService.SendFriendRequest")
	defer span.End()
	span.SetAttributes(attribute.String("requester_id", requesterID), attribute.String("recipient_id", recipientID))

	if requesterID == recipientID {
		return models.FriendRequest{}, ErrSelfRequest
	}

	requester, err := s.store.Users().Get(ctx, requesterID)
	if err != nil {
		return models.FriendRequest{}, storeErr("load requester", err)
	}
	if requester.HasFriend(recipientID) {
		return models.FriendRequest{}, ErrAlreadyFriends
	}
	if _, err := s.store.Users().Get(ctx, recipientID); err != nil {
		return models.FriendRequest{}, storeErr("load recipient", err)
	}

	if _, err := s.store.FriendRequests().FindPending(ctx, recipientID, requesterID); err == nil {
		return models.FriendRequest{}, ErrReversePending
	} else if !errors.Is(err, repositories.ErrFriendRequestNotFound) {
		return models.FriendRequest{}, storeErr("find reverse request", err)
	}

	req := models.FriendRequest{
		ID:          s.newID(),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      models.FriendRequestPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.FriendRequests().Create(ctx, req); err != nil {
		return models.FriendRequest{}, storeErr("create friend request", err)
	}

	observability.IncFriendRequest("sent")
	s.notifyUsers(models.Event{Type: models.EventFriendRequest, RequestID: req.ID, Request: &req}, recipientID)
	observability.PublishDomainEvent(ctx, "friend_request_sent", map[string]string{
		"request_id":   req.ID,
		"requester_id": requesterID,
		"recipient_id": recipientID,
	})
	return req, nil
}

func (s *FriendService) ListPendingRequests(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	reqs, err := s.store.FriendRequests().ListPending(ctx, recipientID)
	if err != nil {
		return nil, storeErr("list friend requests", err)
	}
	return reqs, nil
}

// AcceptFriendRequest moves a pending request addressed to callerID to
// accepted: the chat is created if absent, both friend lists gain each
// other and the request is deleted, all in one transaction. A request
// that no longer exists yields AlreadyHandled. Failures are never retried.
// requesterID may be empty; when set it must match the stored request.
func (s *FriendService) AcceptFriendRequest(ctx context.Context, callerID, requesterID, requestID string) (AcceptResult, error) {
	ctx, span := tracer.Start(ctx, "FriendService.AcceptFriendRequest")
	defer span.End()
	span.SetAttributes(attribute.String("recipient_id", callerID), attribute.String("request_id", requestID))

	var (
		req    models.FriendRequest
		result AcceptResult
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		var err error
		req, err = tx.FriendRequests().Get(ctx, callerID, requestID)
		if errors.Is(err, repositories.ErrFriendRequestNotFound) {
			return errAlreadyHandled
		}
		if err != nil {
			return err
		}
		if req.Status != models.FriendRequestPending {
			return errAlreadyHandled
		}
		if requesterID != "" && req.RequesterID != requesterID {
			return s.deny(ctx, callerID, "friend_request.accept", models.FriendRequestPath(callerID, requestID), map[string]string{"requester_id": requesterID})
		}

		chat := models.NewChat(req.RequesterID, callerID, s.now().UTC())
		created, err := createChatIfAbsent(ctx, tx.Chats(), chat)
		if err != nil {
			return err
		}
		if err := tx.Users().AddFriend(ctx, callerID, req.RequesterID); err != nil {
			return err
		}
		if err := tx.Users().AddFriend(ctx, req.RequesterID, callerID); err != nil {
			return err
		}
		// A concurrent accept that committed first leaves nothing to delete.
		err = tx.FriendRequests().Delete(ctx, callerID, requestID)
		if errors.Is(err, repositories.ErrFriendRequestNotFound) {
			return errAlreadyHandled
		}
		if err != nil {
			return err
		}

		result = AcceptResult{ChatID: chat.ID, ChatCreated: created}
		return nil
	})
	if errors.Is(err, errAlreadyHandled) {
		observability.IncFriendRequest("already_handled")
		return AcceptResult{AlreadyHandled: true}, nil
	}
	if err != nil {
		observability.IncFriendRequest("accept_failed")
		log.Printf("friend request accept failed: request_id=%s recipient_id=%s err=%v", requestID, callerID, err)
		return AcceptResult{}, storeErr("accept friend request", err)
	}

	observability.IncFriendRequest("accepted")

	// The accepted chat becomes the recipient's active chat. Best effort.
	chatID := result.ChatID
	if err := s.store.Users().UpdatePresence(ctx, callerID, models.PresenceUpdate{LastSeen: s.now().UTC(), ActiveChatID: &chatID}); err != nil {
		log.Printf("set active chat after accept failed: user_id=%s chat_id=%s err=%v", callerID, chatID, err)
	}

	req.Status = models.FriendRequestAccepted
	s.notifyUsers(models.Event{Type: models.EventRequestResolved, RequestID: req.ID, Request: &req}, callerID, req.RequesterID)
	if chat, err := s.store.Chats().Get(ctx, chatID); err == nil {
		s.notifyUsers(models.Event{Type: models.EventChatCreated, ChatID: chatID, Chat: &chat}, callerID, req.RequesterID)
	}
	observability.PublishDomainEvent(ctx, "friend_request_accepted", map[string]string{
		"request_id":   req.ID,
		"requester_id": req.RequesterID,
		"recipient_id": callerID,
		"chat_id":      chatID,
	})
	return result, nil
}

// RejectFriendRequest deletes a pending request addressed to callerID.
// It reports true when the request was already gone.
func (s *FriendService) RejectFriendRequest(ctx context.Context, callerID, requestID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "FriendService.RejectFriendRequest")
	defer span.End()

	req, err := s.store.FriendRequests().Get(ctx, callerID, requestID)
	if errors.Is(err, repositories.ErrFriendRequestNotFound) {
		observability.IncFriendRequest("already_handled")
		return true, nil
	}
	if err != nil {
		return false, storeErr("load friend request", err)
	}

	err = s.store.FriendRequests().Delete(ctx, callerID, requestID)
	if errors.Is(err, repositories.ErrFriendRequestNotFound) {
		observability.IncFriendRequest("already_handled")
		return true, nil
	}
	if err != nil {
		return false, storeErr("delete friend request", err)
	}

	observability.IncFriendRequest("rejected")
	req.Status = models.FriendRequestRejected
	s.notifyUsers(models.Event{Type: models.EventRequestResolved, RequestID: req.ID, Request: &req}, callerID, req.RequesterID)
	observability.PublishDomainEvent(ctx, "friend_request_rejected", map[string]string{
		"request_id":   req.ID,
		"requester_id": req.RequesterID,
		"recipient_id": callerID,
	})
	return false, nil
}

// RemoveFriend unfriends the pair: the chat's messages and the chat are
// deleted and both friend lists drop each other.
func (s *FriendService) RemoveFriend(ctx context.Context, callerID, friendID string) error {
	ctx, span := tracer.Start(ctx, "FriendService.RemoveFriend")
	defer span.End()

	caller, err := s.store.Users().Get(ctx, callerID)
	if err != nil {
		return storeErr("load user", err)
	}
	if !caller.HasFriend(friendID) {
		return ErrNotFriends
	}

	chatID := models.ChatID(callerID, friendID)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		if _, err := tx.Messages().DeleteAll(ctx, chatID); err != nil {
			return err
		}
		if err := tx.Chats().Delete(ctx, chatID); err != nil && !errors.Is(err, repositories.ErrChatNotFound) {
			return err
		}
		if err := tx.Users().RemoveFriend(ctx, callerID, friendID); err != nil {
			return err
		}
		return tx.Users().RemoveFriend(ctx, friendID, callerID)
	})
	if err != nil {
		return storeErr("remove friend", err)
	}

	s.notifier.Publish(models.ChatTopic(chatID), models.Event{Type: models.EventChatRemoved, ChatID: chatID})
	s.notifyUsers(models.Event{Type: models.EventChatRemoved, ChatID: chatID}, callerID, friendID)
	observability.PublishDomainEvent(ctx, "friend_removed", map[string]string{"user_id": callerID, "friend_id": friendID, "chat_id": chatID})
	return nil
}
