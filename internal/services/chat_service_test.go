package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories"
	"chromechat-service/internal/repositories/memory"
)

func newChatFixture(t *testing.T) (*memory.Store, *ChatService, *PresenceService, *recordingNotifier, *recordingReporter) {
	t.Helper()
	store := memory.NewStore()
	seedUsers(t, store, "u1", "u2", "u3")
	ctx := context.Background()
	require.NoError(t, store.Users().AddFriend(ctx, "u1", "u2"))
	require.NoError(t, store.Users().AddFriend(ctx, "u2", "u1"))

	chats := NewChatService(store)
	notifier := newRecordingNotifier()
	reporter := &recordingReporter{}
	chats.SetNotifier(notifier)
	chats.SetErrorReporter(reporter)
	return store, chats, NewPresenceService(store), notifier, reporter
}

func TestDeriveChatIDIsSymmetric(t *testing.T) {
	svc := NewChatService(memory.NewStore())
	pairs := [][2]string{{"u1", "u2"}, {"alice", "bob"}, {"Z", "a"}, {"x", "x1"}}
	for _, p := range pairs {
		assert.Equal(t, svc.DeriveChatID(p[0], p[1]), svc.DeriveChatID(p[1], p[0]))
	}
	assert.Equal(t, "u1-u2", svc.DeriveChatID("u2", "u1"))
}

func TestEnsureChatExistsCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store, svc, _, _, _ := newChatFixture(t)

	id, created, err := svc.EnsureChatExists(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, store.Chats().IncrementUnread(ctx, id, "u1"))

	for i := 0; i < 3; i++ {
		again, created, err := svc.EnsureChatExists(ctx, "u1", "u2")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, id, again)
	}

	chats, err := store.Chats().ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, 1, chats[0].UnreadCount["u1"])

	_, _, err = svc.EnsureChatExists(ctx, "u1", "u1")
	assert.ErrorIs(t, err, ErrSelfChat)
}

func TestSendMessageIncrementsWhenRecipientOffline(t *testing.T) {
	ctx := context.Background()
	store, svc, presence, notifier, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, presence.GoOffline(ctx, "u2"))

	msg, err := svc.SendMessage(ctx, "u1", chatID, "hi")
	require.NoError(t, err)
	assert.False(t, msg.Read)
	assert.False(t, msg.Timestamp.IsZero())

	chat, err := store.Chats().Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 1, chat.UnreadCount["u2"])
	assert.Equal(t, 0, chat.UnreadCount["u1"])
	assert.Equal(t, []string{models.EventMessage}, notifier.types(models.ChatTopic(chatID)))
	assert.Equal(t, []string{models.EventChatUpdated}, notifier.types(models.UserTopic("u2")))
}

func TestSendMessageSuppressedWhileRecipientViewing(t *testing.T) {
	ctx := context.Background()
	store, svc, presence, _, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, presence.GoOnline(ctx, "u2"))
	require.NoError(t, presence.SetActiveChat(ctx, "u2", chatID))

	_, err = svc.SendMessage(ctx, "u1", chatID, "hi")
	require.NoError(t, err)
	chat, _ := store.Chats().Get(ctx, chatID)
	assert.Equal(t, 0, chat.UnreadCount["u2"])

	// Online but looking at another chat still counts.
	require.NoError(t, presence.SetActiveChat(ctx, "u2", ""))
	_, err = svc.SendMessage(ctx, "u1", chatID, "again")
	require.NoError(t, err)
	chat, _ = store.Chats().Get(ctx, chatID)
	assert.Equal(t, 1, chat.UnreadCount["u2"])
}

func TestSendMessageThenMarkRead(t *testing.T) {
	ctx := context.Background()
	store, svc, _, _, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "u1", chatID, "one")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "u1", chatID, "two")
	require.NoError(t, err)

	changed, err := svc.MarkRead(ctx, "u2", chatID)
	require.NoError(t, err)
	assert.True(t, changed)
	chat, _ := store.Chats().Get(ctx, chatID)
	assert.Equal(t, 0, chat.UnreadCount["u2"])

	changed, err = svc.MarkRead(ctx, "u2", chatID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	_, svc, _, _, reporter := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "u1", chatID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.SendMessage(ctx, "u1", "u1-u9", "hi")
	assert.ErrorIs(t, err, repositories.ErrChatNotFound)

	_, err = svc.SendMessage(ctx, "u3", chatID, "let me in")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	require.Len(t, reporter.reports, 1)
	assert.Equal(t, permissionReport{userID: "u3", op: "messages.create", path: "chats/u1-u2"}, reporter.reports[0])
}

func TestListMessagesOrderedAndRestartable(t *testing.T) {
	ctx := context.Background()
	_, svc, _, _, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)

	for _, text := range []string{"a", "b", "c"} {
		_, err := svc.SendMessage(ctx, "u1", chatID, text)
		require.NoError(t, err)
	}

	first, err := svc.ListMessages(ctx, "u2", chatID)
	require.NoError(t, err)
	second, err := svc.ListMessages(ctx, "u1", chatID)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, "a", first[0].Text)
	assert.Equal(t, "c", first[2].Text)

	_, err = svc.ListMessages(ctx, "u3", chatID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestClearChatKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	store, svc, _, notifier, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "u1", chatID, "hi")
	require.NoError(t, err)
	before, _ := store.Chats().Get(ctx, chatID)

	n, err := svc.ClearChat(ctx, "u2", chatID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msgs, err := svc.ListMessages(ctx, "u1", chatID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	after, err := store.Chats().Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, notifier.types(models.ChatTopic(chatID)), models.EventCleared)

	n, err = svc.ClearChat(ctx, "u2", chatID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartChatRequiresFriendship(t *testing.T) {
	ctx := context.Background()
	_, svc, _, notifier, _ := newChatFixture(t)

	chat, err := svc.StartChat(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u1-u2", chat.ID)
	assert.Contains(t, notifier.types(models.UserTopic("u2")), models.EventChatCreated)

	_, err = svc.StartChat(ctx, "u1", "u3")
	assert.ErrorIs(t, err, ErrNotFriends)
}

func TestListChatsSummaries(t *testing.T) {
	ctx := context.Background()
	_, svc, presence, _, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, presence.GoOnline(ctx, "u2"))
	_, err = svc.SendMessage(ctx, "u2", chatID, "yo")
	require.NoError(t, err)

	summaries, err := svc.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "u2", summaries[0].FriendID)
	assert.Equal(t, "name-u2", summaries[0].FriendUsername)
	assert.True(t, summaries[0].FriendActive)
	assert.Equal(t, 1, summaries[0].Unread)
}

func TestConcreteScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUsers(t, store, "u1", "u2")
	friends := NewFriendService(store)
	chats := NewChatService(store)
	presence := NewPresenceService(store)

	req, err := friends.SendFriendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	pending, err := friends.ListPendingRequests(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	res, err := friends.AcceptFriendRequest(ctx, "u2", "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1-u2", res.ChatID)

	require.NoError(t, presence.GoOffline(ctx, "u2"))
	_, err = chats.SendMessage(ctx, "u1", "u1-u2", "hi")
	require.NoError(t, err)
	chat, _ := store.Chats().Get(ctx, "u1-u2")
	assert.Equal(t, 1, chat.UnreadCount["u2"])

	require.NoError(t, presence.GoOnline(ctx, "u2"))
	require.NoError(t, presence.SetActiveChat(ctx, "u2", "u1-u2"))
	_, err = chats.MarkRead(ctx, "u2", "u1-u2")
	require.NoError(t, err)
	chat, _ = store.Chats().Get(ctx, "u1-u2")
	assert.Equal(t, 0, chat.UnreadCount["u2"])
}

func TestSendMessageIncrementsWhenPresenceUnreadable(t *testing.T) {
	ctx := context.Background()
	store, svc, presence, _, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, presence.GoOnline(ctx, "u2"))
	require.NoError(t, presence.SetActiveChat(ctx, "u2", chatID))
	require.NoError(t, store.Chats().IncrementUnread(ctx, chatID, "u2"))

	before, err := store.Chats().Get(ctx, chatID)
	require.NoError(t, err)

	flaky := NewChatService(&faultyStore{Store: store, userGetErr: map[string]error{"u2": errors.New("deadline exceeded")}})
	_, err = flaky.SendMessage(ctx, "u1", chatID, "are you there?")
	require.NoError(t, err)

	after, err := store.Chats().Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, before.UnreadCount["u2"]+1, after.UnreadCount["u2"])
}

func TestConcurrentSendsCountEveryMessage(t *testing.T) {
	ctx := context.Background()
	store, svc, _, _, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)

	const senders = 25
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.SendMessage(ctx, "u1", chatID, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	chat, err := store.Chats().Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, senders, chat.UnreadCount["u2"])

	msgs, err := svc.ListMessages(ctx, "u2", chatID)
	require.NoError(t, err)
	assert.Len(t, msgs, senders)
}

func TestConcurrentSendAndMarkReadStayConsistent(t *testing.T) {
	ctx := context.Background()
	store, svc, _, _, _ := newChatFixture(t)
	chatID, _, err := svc.EnsureChatExists(ctx, "u1", "u2")
	require.NoError(t, err)

	const rounds = 20
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.SendMessage(ctx, "u1", chatID, "ping")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.MarkRead(ctx, "u2", chatID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	chat, err := store.Chats().Get(ctx, chatID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, chat.UnreadCount["u2"], 0)
	assert.LessOrEqual(t, chat.UnreadCount["u2"], rounds)
	assert.Equal(t, 0, chat.UnreadCount["u1"])

	_, err = svc.MarkRead(ctx, "u2", chatID)
	require.NoError(t, err)
	chat, err = store.Chats().Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 0, chat.UnreadCount["u2"])
}

func TestEnsureChatExistsRejectsCollidingPair(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUsers(t, store, "a-b", "c", "a", "b-c")
	svc := NewChatService(store)

	id, created, err := svc.EnsureChatExists(ctx, "a-b", "c")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "a-b-c", id)

	_, _, err = svc.EnsureChatExists(ctx, "a", "b-c")
	assert.ErrorIs(t, err, ErrChatIDConflict)

	chat, err := store.Chats().Get(ctx, "a-b-c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-b", "c"}, chat.ParticipantIDs)
}
