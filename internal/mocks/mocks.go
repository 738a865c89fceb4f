package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chromechat-service/internal/models"
	"chromechat-service/internal/services"
)

type FriendServiceMock struct {
	mock.Mock
}

func (m *FriendServiceMock) SendFriendRequest(ctx context.Context, requesterID, recipientID string) (models.FriendRequest, error) {
	args := m.Called(ctx, requesterID, recipientID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendServiceMock) ListPendingRequests(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	args := m.Called(ctx, recipientID)
	var reqs []models.FriendRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.FriendRequest)
	}
	return reqs, args.Error(1)
}

func (m *FriendServiceMock) AcceptFriendRequest(ctx context.Context, callerID, requesterID, requestID string) (services.AcceptResult, error) {
	args := m.Called(ctx, callerID, requesterID, requestID)
	var res services.AcceptResult
	if val := args.Get(0); val != nil {
		res = val.(services.AcceptResult)
	}
	return res, args.Error(1)
}

func (m *FriendServiceMock) RejectFriendRequest(ctx context.Context, callerID, requestID string) (bool, error) {
	args := m.Called(ctx, callerID, requestID)
	return args.Bool(0), args.Error(1)
}

func (m *FriendServiceMock) RemoveFriend(ctx context.Context, callerID, friendID string) error {
	args := m.Called(ctx, callerID, friendID)
	return args.Error(0)
}

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) StartChat(ctx context.Context, callerID, friendID string) (models.Chat, error) {
	args := m.Called(ctx, callerID, friendID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) Chat(ctx context.Context, callerID, chatID string) (models.Chat, error) {
	args := m.Called(ctx, callerID, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, callerID, chatID string) ([]models.Message, error) {
	args := m.Called(ctx, callerID, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, senderID, chatID, text string) (models.Message, error) {
	args := m.Called(ctx, senderID, chatID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) MarkRead(ctx context.Context, userID, chatID string) (bool, error) {
	args := m.Called(ctx, userID, chatID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatServiceMock) ClearChat(ctx context.Context, callerID, chatID string) (int64, error) {
	args := m.Called(ctx, callerID, chatID)
	return args.Get(0).(int64), args.Error(1)
}

type PresenceServiceMock struct {
	mock.Mock
}

func (m *PresenceServiceMock) GoOnline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceServiceMock) GoOffline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceServiceMock) SetActiveChat(ctx context.Context, userID, chatID string) error {
	return m.Called(ctx, userID, chatID).Error(0)
}

func (m *PresenceServiceMock) Get(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type UserServiceMock struct {
	mock.Mock
}

func (m *UserServiceMock) Register(ctx context.Context, userID, username, email string) (models.User, bool, error) {
	args := m.Called(ctx, userID, username, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Bool(1), args.Error(2)
}

func (m *UserServiceMock) Get(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserServiceMock) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type AssistantServiceMock struct {
	mock.Mock
}

func (m *AssistantServiceMock) Ask(ctx context.Context, userID, prompt string) (models.Message, models.Message, error) {
	args := m.Called(ctx, userID, prompt)
	var sent, reply models.Message
	if val := args.Get(0); val != nil {
		sent = val.(models.Message)
	}
	if val := args.Get(1); val != nil {
		reply = val.(models.Message)
	}
	return sent, reply, args.Error(2)
}
