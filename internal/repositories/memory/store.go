// Package memory is an in-process Store used by tests and single-node
// development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories"
)

type state struct {
	users    map[string]models.User
	requests map[string]map[string]models.FriendRequest // recipient -> id -> request
	chats    map[string]models.Chat
	messages map[string][]models.Message
}

func newState() *state {
	return &state{
		users:    map[string]models.User{},
		requests: map[string]map[string]models.FriendRequest{},
		chats:    map[string]models.Chat{},
		messages: map[string][]models.Message{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, u := range s.users {
		u.FriendIDs = append([]string{}, u.FriendIDs...)
		if u.ActiveChatID != nil {
			chatID := *u.ActiveChatID
			u.ActiveChatID = &chatID
		}
		c.users[id] = u
	}
	for recipient, reqs := range s.requests {
		c.requests[recipient] = map[string]models.FriendRequest{}
		for id, r := range reqs {
			c.requests[recipient][id] = r
		}
	}
	for id, chat := range s.chats {
		c.chats[id] = cloneChat(chat)
	}
	for id, msgs := range s.messages {
		c.messages[id] = append([]models.Message{}, msgs...)
	}
	return c
}

func cloneChat(chat models.Chat) models.Chat {
	chat.ParticipantIDs = append([]string{}, chat.ParticipantIDs...)
	unread := make(map[string]int, len(chat.UnreadCount))
	for k, v := range chat.UnreadCount {
		unread[k] = v
	}
	chat.UnreadCount = unread
	return chat
}

// Store keeps every document in memory behind a single mutex. A
// transaction holds the mutex for its whole duration and works on a copy
// of the state that replaces the original only on success.
type Store struct {
	mu    *sync.Mutex
	root  **state
	st    *state
	inTx  bool
	now   func() time.Time
	fault *faults
}

type faults struct {
	commitErr error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, root: &st, now: time.Now, fault: &faults{}}
}

// SetClock overrides the timestamp source used for store-assigned times.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// FailNextCommit makes the next WithinTx discard its work and return err
// after fn succeeds, simulating an interrupted commit.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault.commitErr = err
}

func (s *Store) Users() repositories.UserRepository                   { return &userRepo{s} }
func (s *Store) FriendRequests() repositories.FriendRequestRepository { return &friendRequestRepo{s} }
func (s *Store) Chats() repositories.ChatRepository                   { return &chatRepo{s} }
func (s *Store) Messages() repositories.MessageRepository             { return &messageRepo{s} }

// WithinTx runs fn against a private copy of the state and publishes it
// only if fn and the commit succeed.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := (*s.root).clone()
	tx := &Store{mu: s.mu, root: s.root, st: work, inTx: true, now: s.now, fault: s.fault}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fault.commitErr; err != nil {
		s.fault.commitErr = nil
		return err
	}
	*s.root = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// view runs fn with the state visible to this store, locking when outside
// a transaction.
func (s *Store) view(fn func(st *state) error) error {
	if s.inTx {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(*s.root)
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user models.User) (bool, error) {
	if err := models.Validate(user); err != nil {
		return false, err
	}
	created := false
	err := r.s.view(func(st *state) error {
		if _, ok := st.users[user.ID]; ok {
			return nil
		}
		if user.FriendIDs == nil {
			user.FriendIDs = []string{}
		}
		st.users[user.ID] = user
		created = true
		return nil
	})
	return created, err
}

func (r *userRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.s.view(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return repositories.ErrUserNotFound
		}
		user = u
		user.FriendIDs = append([]string{}, u.FriendIDs...)
		return nil
	})
	return user, err
}

func (r *userRepo) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.s.view(func(st *state) error {
		users = make([]models.User, 0, len(st.users))
		for _, u := range st.users {
			u.FriendIDs = append([]string{}, u.FriendIDs...)
			users = append(users, u)
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, err
}

func (r *userRepo) AddFriend(ctx context.Context, userID string, friendID string) error {
	return r.s.view(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return repositories.ErrUserNotFound
		}
		if !u.HasFriend(friendID) {
			u.FriendIDs = append(append([]string{}, u.FriendIDs...), friendID)
		}
		st.users[userID] = u
		return nil
	})
}

func (r *userRepo) RemoveFriend(ctx context.Context, userID string, friendID string) error {
	return r.s.view(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return repositories.ErrUserNotFound
		}
		kept := make([]string, 0, len(u.FriendIDs))
		for _, id := range u.FriendIDs {
			if id != friendID {
				kept = append(kept, id)
			}
		}
		u.FriendIDs = kept
		st.users[userID] = u
		return nil
	})
}

func (r *userRepo) UpdatePresence(ctx context.Context, userID string, update models.PresenceUpdate) error {
	return r.s.view(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return repositories.ErrUserNotFound
		}
		if update.IsActive != nil {
			u.IsActive = *update.IsActive
		}
		if !update.LastSeen.IsZero() {
			u.LastSeen = update.LastSeen
		}
		switch {
		case update.ClearActiveChat:
			u.ActiveChatID = nil
		case update.ActiveChatID != nil:
			chatID := *update.ActiveChatID
			u.ActiveChatID = &chatID
		}
		st.users[userID] = u
		return nil
	})
}

type friendRequestRepo struct{ s *Store }

func (r *friendRequestRepo) Create(ctx context.Context, req models.FriendRequest) error {
	if err := models.Validate(req); err != nil {
		return err
	}
	return r.s.view(func(st *state) error {
		if _, ok := st.users[req.RecipientID]; !ok {
			return repositories.ErrUserNotFound
		}
		for _, existing := range st.requests[req.RecipientID] {
			if existing.RequesterID == req.RequesterID && existing.Status == models.FriendRequestPending {
				return repositories.ErrDuplicateFriendRequest
			}
		}
		if st.requests[req.RecipientID] == nil {
			st.requests[req.RecipientID] = map[string]models.FriendRequest{}
		}
		st.requests[req.RecipientID][req.ID] = req
		return nil
	})
}

func (r *friendRequestRepo) Get(ctx context.Context, recipientID string, requestID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.s.view(func(st *state) error {
		found, ok := st.requests[recipientID][requestID]
		if !ok {
			return repositories.ErrFriendRequestNotFound
		}
		req = found
		return nil
	})
	return req, err
}

func (r *friendRequestRepo) ListPending(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	reqs := []models.FriendRequest{}
	err := r.s.view(func(st *state) error {
		for _, req := range st.requests[recipientID] {
			if req.Status == models.FriendRequestPending {
				reqs = append(reqs, req)
			}
		}
		return nil
	})
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
	return reqs, err
}

func (r *friendRequestRepo) FindPending(ctx context.Context, requesterID string, recipientID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.s.view(func(st *state) error {
		for _, existing := range st.requests[recipientID] {
			if existing.RequesterID == requesterID && existing.Status == models.FriendRequestPending {
				req = existing
				return nil
			}
		}
		return repositories.ErrFriendRequestNotFound
	})
	return req, err
}

func (r *friendRequestRepo) Delete(ctx context.Context, recipientID string, requestID string) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.requests[recipientID][requestID]; !ok {
			return repositories.ErrFriendRequestNotFound
		}
		delete(st.requests[recipientID], requestID)
		return nil
	})
}

type chatRepo struct{ s *Store }

func (r *chatRepo) CreateIfAbsent(ctx context.Context, chat models.Chat) (bool, error) {
	if err := models.Validate(chat); err != nil {
		return false, err
	}
	created := false
	err := r.s.view(func(st *state) error {
		if _, ok := st.chats[chat.ID]; ok {
			return nil
		}
		st.chats[chat.ID] = cloneChat(chat)
		created = true
		return nil
	})
	return created, err
}

func (r *chatRepo) Get(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.s.view(func(st *state) error {
		found, ok := st.chats[chatID]
		if !ok {
			return repositories.ErrChatNotFound
		}
		chat = cloneChat(found)
		return nil
	})
	return chat, err
}

func (r *chatRepo) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	chats := []models.Chat{}
	err := r.s.view(func(st *state) error {
		for _, chat := range st.chats {
			if chat.HasParticipant(userID) {
				chats = append(chats, cloneChat(chat))
			}
		}
		return nil
	})
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID < chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, err
}

func (r *chatRepo) IncrementUnread(ctx context.Context, chatID string, userID string) error {
	return r.s.view(func(st *state) error {
		chat, ok := st.chats[chatID]
		if !ok {
			return repositories.ErrChatNotFound
		}
		if _, ok := chat.UnreadCount[userID]; !ok {
			return repositories.ErrChatNotFound
		}
		chat.UnreadCount[userID]++
		return nil
	})
}

func (r *chatRepo) ResetUnread(ctx context.Context, chatID string, userID string) (bool, error) {
	changed := false
	err := r.s.view(func(st *state) error {
		chat, ok := st.chats[chatID]
		if !ok {
			return repositories.ErrChatNotFound
		}
		count, ok := chat.UnreadCount[userID]
		if !ok {
			return repositories.ErrChatNotFound
		}
		if count != 0 {
			chat.UnreadCount[userID] = 0
			changed = true
		}
		return nil
	})
	return changed, err
}

func (r *chatRepo) Delete(ctx context.Context, chatID string) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.chats[chatID]; !ok {
			return repositories.ErrChatNotFound
		}
		delete(st.chats, chatID)
		delete(st.messages, chatID)
		return nil
	})
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := models.Validate(msg); err != nil {
		return models.Message{}, err
	}
	err := r.s.view(func(st *state) error {
		if _, ok := st.chats[msg.ChatID]; !ok {
			return repositories.ErrChatNotFound
		}
		msg.Timestamp = r.s.now().UTC()
		st.messages[msg.ChatID] = append(st.messages[msg.ChatID], msg)
		return nil
	})
	return msg, err
}

func (r *messageRepo) List(ctx context.Context, chatID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.s.view(func(st *state) error {
		msgs = append(msgs, st.messages[chatID]...)
		return nil
	})
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return msgs, err
}

func (r *messageRepo) DeleteAll(ctx context.Context, chatID string) (int64, error) {
	var count int64
	err := r.s.view(func(st *state) error {
		count = int64(len(st.messages[chatID]))
		delete(st.messages, chatID)
		return nil
	})
	return count, err
}

var _ repositories.Store = (*Store)(nil)
