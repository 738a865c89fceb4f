package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chromechat-service/internal/mocks"
	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories"
	"chromechat-service/internal/services"
)

var (
	_ FriendService    = (*mocks.FriendServiceMock)(nil)
	_ ChatService      = (*mocks.ChatServiceMock)(nil)
	_ PresenceService  = (*mocks.PresenceServiceMock)(nil)
	_ UserService      = (*mocks.UserServiceMock)(nil)
	_ AssistantService = (*mocks.AssistantServiceMock)(nil)
)

type fixture struct {
	friends   *mocks.FriendServiceMock
	chats     *mocks.ChatServiceMock
	presence  *mocks.PresenceServiceMock
	users     *mocks.UserServiceMock
	assistant *mocks.AssistantServiceMock
	router    *gin.Engine
}

func setupRouter() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		friends:   new(mocks.FriendServiceMock),
		chats:     new(mocks.ChatServiceMock),
		presence:  new(mocks.PresenceServiceMock),
		users:     new(mocks.UserServiceMock),
		assistant: new(mocks.AssistantServiceMock),
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u2")
		c.Set("username", "bob")
		c.Set("email", "bob@example.com")
		c.Next()
	})

	users := NewUserHandler(f.users)
	r.POST("/users/me", users.Register)
	r.GET("/users/me", users.Me)
	r.GET("/users", users.List)

	friends := NewFriendHandler(f.friends)
	r.GET("/friend-requests", friends.ListRequests)
	r.POST("/friend-requests", friends.SendRequest)
	r.POST("/friend-requests/:request_id/accept", friends.Accept)
	r.POST("/friend-requests/:request_id/reject", friends.Reject)
	r.DELETE("/friends/:friend_id", friends.RemoveFriend)

	chats := NewChatHandler(f.chats)
	r.GET("/chats", chats.ListChats)
	r.POST("/chats/start", chats.StartChat)
	r.GET("/chats/:chat_id/messages", chats.GetChatMessages)
	r.POST("/chats/:chat_id/messages", chats.PostChatMessage)
	r.DELETE("/chats/:chat_id/messages", chats.ClearChat)
	r.POST("/chats/:chat_id/read", chats.MarkRead)

	presence := NewPresenceHandler(f.presence)
	r.PUT("/presence", presence.Update)
	r.PUT("/presence/active-chat", presence.SetActiveChat)

	r.POST("/assistant/messages", NewAssistantHandler(f.assistant).Ask)

	f.router = r
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestAcceptFriendRequest(t *testing.T) {
	f := setupRouter()
	f.friends.On("AcceptFriendRequest", mock.Anything, "u2", "u1", "r1").
		Return(services.AcceptResult{ChatID: "u1-u2", ChatCreated: true}, nil).Once()

	rec := f.do(http.MethodPost, "/friend-requests/r1/accept", `{"requester_id":"u1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "u1-u2", resp["chat_id"])
	f.friends.AssertExpectations(t)
}

func TestAcceptFriendRequestAlreadyHandled(t *testing.T) {
	f := setupRouter()
	f.friends.On("AcceptFriendRequest", mock.Anything, "u2", "", "r1").
		Return(services.AcceptResult{AlreadyHandled: true}, nil).Once()

	rec := f.do(http.MethodPost, "/friend-requests/r1/accept", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_handled", decode(t, rec)["status"])
}

func TestAcceptFriendRequestUnavailable(t *testing.T) {
	f := setupRouter()
	err := fmt.Errorf("accept friend request: %w: connection reset", services.ErrUnavailable)
	f.friends.On("AcceptFriendRequest", mock.Anything, "u2", "", "r1").Return(services.AcceptResult{}, err).Once()

	rec := f.do(http.MethodPost, "/friend-requests/r1/accept", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendFriendRequestErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{services.ErrSelfRequest, http.StatusBadRequest},
		{services.ErrAlreadyFriends, http.StatusConflict},
		{services.ErrReversePending, http.StatusConflict},
		{repositories.ErrDuplicateFriendRequest, http.StatusConflict},
		{repositories.ErrUserNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := setupRouter()
		f.friends.On("SendFriendRequest", mock.Anything, "u2", "u3").Return(nil, tc.err).Once()

		rec := f.do(http.MethodPost, "/friend-requests", `{"recipient_id":"u3"}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestSendFriendRequestCreated(t *testing.T) {
	f := setupRouter()
	f.friends.On("SendFriendRequest", mock.Anything, "u2", "u3").
		Return(models.FriendRequest{ID: "r9", RequesterID: "u2", RecipientID: "u3", Status: models.FriendRequestPending}, nil).Once()

	rec := f.do(http.MethodPost, "/friend-requests", `{"recipient_id":"u3"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "r9", decode(t, rec)["id"])

	rec = f.do(http.MethodPost, "/friend-requests", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectFriendRequest(t *testing.T) {
	f := setupRouter()
	f.friends.On("RejectFriendRequest", mock.Anything, "u2", "r1").Return(false, nil).Once()
	f.friends.On("RejectFriendRequest", mock.Anything, "u2", "r2").Return(true, nil).Once()

	assert.Equal(t, "rejected", decode(t, f.do(http.MethodPost, "/friend-requests/r1/reject", ""))["status"])
	assert.Equal(t, "already_handled", decode(t, f.do(http.MethodPost, "/friend-requests/r2/reject", ""))["status"])
}

func TestRemoveFriend(t *testing.T) {
	f := setupRouter()
	f.friends.On("RemoveFriend", mock.Anything, "u2", "u1").Return(nil).Once()
	f.friends.On("RemoveFriend", mock.Anything, "u2", "u9").Return(services.ErrNotFriends).Once()

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/friends/u1", "").Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodDelete, "/friends/u9", "").Code)
}

func TestPostChatMessage(t *testing.T) {
	f := setupRouter()
	f.chats.On("SendMessage", mock.Anything, "u2", "u1-u2", "hi").
		Return(models.Message{ID: "m1", ChatID: "u1-u2", SenderID: "u2", Text: "hi"}, nil).Once()

	rec := f.do(http.MethodPost, "/chats/u1-u2/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "m1", decode(t, rec)["id"])
	f.chats.AssertExpectations(t)
}

func TestPostChatMessagePermissionDenied(t *testing.T) {
	f := setupRouter()
	permErr := &services.PermissionError{Op: "messages.create", Path: "chats/u1-u3", UserID: "u2"}
	f.chats.On("SendMessage", mock.Anything, "u2", "u1-u3", "hi").Return(nil, permErr).Once()

	rec := f.do(http.MethodPost, "/chats/u1-u3/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "chats/u1-u3")
}

func TestChatReadEndpoints(t *testing.T) {
	f := setupRouter()
	f.chats.On("ListChats", mock.Anything, "u2").Return([]models.ChatSummary{{ChatID: "u1-u2", FriendID: "u1", Unread: 2}}, nil).Once()
	f.chats.On("ListMessages", mock.Anything, "u2", "u1-u2").Return([]models.Message{{ID: "m1"}, {ID: "m2"}}, nil).Once()
	f.chats.On("ListMessages", mock.Anything, "u2", "nope").Return(nil, repositories.ErrChatNotFound).Once()
	f.chats.On("MarkRead", mock.Anything, "u2", "u1-u2").Return(true, nil).Once()
	f.chats.On("ClearChat", mock.Anything, "u2", "u1-u2").Return(int64(2), nil).Once()

	rec := f.do(http.MethodGet, "/chats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["chats"], 1)

	rec = f.do(http.MethodGet, "/chats/u1-u2/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["messages"], 2)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/chats/nope/messages", "").Code)
	assert.Equal(t, true, decode(t, f.do(http.MethodPost, "/chats/u1-u2/read", ""))["changed"])
	assert.Equal(t, float64(2), decode(t, f.do(http.MethodDelete, "/chats/u1-u2/messages", ""))["deleted"])
	f.chats.AssertExpectations(t)
}

func TestStartChat(t *testing.T) {
	f := setupRouter()
	f.chats.On("StartChat", mock.Anything, "u2", "u1").Return(models.Chat{ID: "u1-u2"}, nil).Once()
	f.chats.On("StartChat", mock.Anything, "u2", "u2").Return(nil, services.ErrSelfChat).Once()

	rec := f.do(http.MethodPost, "/chats/start", `{"friend_id":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1-u2", decode(t, rec)["chat_id"])

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/chats/start", `{"friend_id":"u2"}`).Code)
}

func TestPresenceEndpoints(t *testing.T) {
	f := setupRouter()
	chatID := "u1-u2"
	f.presence.On("GoOffline", mock.Anything, "u2").Return(nil).Once()
	f.presence.On("SetActiveChat", mock.Anything, "u2", "u1-u2").Return(nil).Once()
	f.presence.On("SetActiveChat", mock.Anything, "u2", "").Return(nil).Once()
	f.presence.On("Get", mock.Anything, "u2").Return(models.User{ID: "u2", ActiveChatID: &chatID}, nil)

	rec := f.do(http.MethodPut, "/presence", `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["is_active"])

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/presence", `{}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPut, "/presence/active-chat", `{"chat_id":"u1-u2"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPut, "/presence/active-chat", `{"chat_id":null}`).Code)
	f.presence.AssertExpectations(t)
}

func TestRegisterAndDirectory(t *testing.T) {
	f := setupRouter()
	f.users.On("Register", mock.Anything, "u2", "bob", "bob@example.com").Return(models.User{ID: "u2", Username: "bob"}, true, nil).Once()
	f.users.On("List", mock.Anything).Return([]models.User{
		{ID: "u1", Username: "alice", Email: "alice@example.com"},
		{ID: "u2", Username: "bob"},
	}, nil).Once()

	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/users/me", "").Code)

	rec := f.do(http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "alice@example.com")
	assert.Len(t, decode(t, rec)["users"], 1)
}

func TestAssistantAsk(t *testing.T) {
	f := setupRouter()
	f.assistant.On("Ask", mock.Anything, "u2", "hello").
		Return(models.Message{ID: "m1", Text: "hello"}, models.Message{ID: "m2", Text: "hi!"}, nil).Once()

	rec := f.do(http.MethodPost, "/assistant/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode(t, rec)["reply"].(map[string]any)
	assert.Equal(t, "hi!", reply["text"])
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", Health(pingFunc(func(context.Context) error { return nil })))
	r.GET("/down", Health(pingFunc(func(context.Context) error { return errors.New("no route") })))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAcceptFriendRequestMalformedBody(t *testing.T) {
	f := setupRouter()

	rec := f.do(http.MethodPost, "/friend-requests/r1/accept", `{"requester_id":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.friends.AssertNotCalled(t, "AcceptFriendRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterMalformedBody(t *testing.T) {
	f := setupRouter()

	rec := f.do(http.MethodPost, "/users/me", `not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.users.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChatIDConflictIsConflict(t *testing.T) {
	f := setupRouter()
	err := fmt.Errorf("accept: %w: a-b-c held by a-b,c", services.ErrChatIDConflict)
	f.friends.On("AcceptFriendRequest", mock.Anything, "u2", "", "r7").Return(services.AcceptResult{}, err).Once()

	rec := f.do(http.MethodPost, "/friend-requests/r7/accept", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
