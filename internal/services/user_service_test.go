package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories/memory"
)

func TestRegisterIsIdempotentAndBefriendsAssistant(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewUserService(store)
	require.NoError(t, svc.EnsureAssistant(ctx))
	require.NoError(t, svc.EnsureAssistant(ctx))

	user, created, err := svc.Register(ctx, "u1", "alice", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{models.AssistantUserID}, user.FriendIDs)
	assert.True(t, user.IsActive)

	again, created, err := svc.Register(ctx, "u1", "renamed", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice", again.Username)

	bot, err := svc.Get(ctx, models.AssistantUserID)
	require.NoError(t, err)
	assert.Contains(t, bot.FriendIDs, "u1")

	chat, err := store.Chats().Get(ctx, models.ChatID("u1", models.AssistantUserID))
	require.NoError(t, err)
	assert.Equal(t, 0, chat.UnreadCount["u1"])

	users, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestRegisterRejectsAssistantID(t *testing.T) {
	svc := NewUserService(memory.NewStore())
	_, _, err := svc.Register(context.Background(), models.AssistantUserID, "bot", "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRegisterRejectsInvalidProfile(t *testing.T) {
	svc := NewUserService(memory.NewStore())
	_, _, err := svc.Register(context.Background(), "u1", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidDocument)
}
