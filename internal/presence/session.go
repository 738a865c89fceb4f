package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"chromechat-service/internal/models"
)

// TypingTimeout bounds how long a typing indicator stays on without a refresh.
const TypingTimeout = 3 * time.Second

// Writer persists presence for the session's own user.
type Writer interface {
	GoOnline(ctx context.Context, userID string) error
	GoOffline(ctx context.Context, userID string) error
	SetActiveChat(ctx context.Context, userID, chatID string) error
}

// Notifier receives typing events for chat topics.
type Notifier interface {
	Publish(topic string, event models.Event)
}

// State is a snapshot of a session.
type State struct {
	UserID       string `json:"user_id"`
	Online       bool   `json:"online"`
	SelectedChat string `json:"selected_chat,omitempty"`
	TypingChat   string `json:"typing_chat,omitempty"`
	Closed       bool   `json:"closed"`
}

// Session is the per-connection presence context of one user. Presence
// writes are best effort: failures are logged and the session state
// still advances, so the next heartbeat can correct the store.
type Session struct {
	mu       sync.Mutex
	userID   string
	writer   Writer
	notifier Notifier

	online       bool
	selectedChat string
	typingChat   string
	typingTimer  *time.Timer
	typingGen    uint64
	closed       bool

	typingTimeout time.Duration
}

func NewSession(userID string, writer Writer, notifier Notifier) *Session {
	return &Session{
		userID:        userID,
		writer:        writer,
		notifier:      notifier,
		typingTimeout: TypingTimeout,
	}
}

func (s *Session) UserID() string {
	return s.userID
}

// Mount marks the user online.
func (s *Session) Mount(ctx context.Context) {
	s.setOnline(ctx, true)
}

// VisibilityChanged moves the user online when the page becomes visible
// and offline when it is hidden.
func (s *Session) VisibilityChanged(ctx context.Context, visible bool) {
	if !visible {
		s.stopTyping()
	}
	s.setOnline(ctx, visible)
}

// Heartbeat rewrites the online state while the page is visible.
func (s *Session) Heartbeat(ctx context.Context) {
	s.mu.Lock()
	online := s.online && !s.closed
	s.mu.Unlock()
	if online {
		s.setOnline(ctx, true)
	}
}

// Unload marks the user offline and closes the session. Later calls are ignored.
func (s *Session) Unload(ctx context.Context) {
	s.stopTyping()
	s.setOnline(ctx, false)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Detach closes the session without an offline write, for a connection
// that ends while another session of the same user stays open.
func (s *Session) Detach() {
	s.stopTyping()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// SelectChat focuses chatID, or clears the focus when chatID is empty.
// A rejected selection leaves the previous focus in place.
func (s *Session) SelectChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.writer.SetActiveChat(ctx, s.userID, chatID); err != nil {
		log.Printf("presence select chat failed: user_id=%s chat_id=%s err=%v", s.userID, chatID, err)
		return err
	}

	s.mu.Lock()
	changed := s.selectedChat != chatID
	s.selectedChat = chatID
	s.mu.Unlock()
	if changed {
		s.stopTyping()
	}
	return nil
}

// SetTyping turns the typing indicator on or off for the selected chat.
// An indicator that is not refreshed turns itself off after the typing
// timeout. It reports false when chatID is not the selected chat.
func (s *Session) SetTyping(chatID string, typing bool) bool {
	s.mu.Lock()
	if s.closed || chatID == "" || chatID != s.selectedChat {
		s.mu.Unlock()
		return false
	}
	if !typing {
		s.mu.Unlock()
		s.stopTyping()
		return true
	}

	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingGen++
	gen := s.typingGen
	announce := s.typingChat != chatID
	s.typingChat = chatID
	s.typingTimer = time.AfterFunc(s.typingTimeout, func() { s.expireTyping(gen) })
	s.mu.Unlock()

	if announce {
		s.publishTyping(chatID, true)
	}
	return true
}

func (s *Session) expireTyping(gen uint64) {
	s.mu.Lock()
	if gen != s.typingGen || s.typingChat == "" {
		s.mu.Unlock()
		return
	}
	chatID := s.typingChat
	s.typingChat = ""
	s.typingTimer = nil
	s.mu.Unlock()

	s.publishTyping(chatID, false)
}

func (s *Session) stopTyping() {
	s.mu.Lock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typingGen++
	chatID := s.typingChat
	s.typingChat = ""
	s.mu.Unlock()

	if chatID != "" {
		s.publishTyping(chatID, false)
	}
}

func (s *Session) publishTyping(chatID string, typing bool) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(models.ChatTopic(chatID), models.Event{
		Type:   models.EventTyping,
		ChatID: chatID,
		UserID: s.userID,
		Typing: &typing,
	})
}

func (s *Session) setOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.online = online
	s.mu.Unlock()

	var err error
	if online {
		err = s.writer.GoOnline(ctx, s.userID)
	} else {
		err = s.writer.GoOffline(ctx, s.userID)
	}
	if err != nil {
		log.Printf("presence write failed: user_id=%s online=%t err=%v", s.userID, online, err)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		UserID:       s.userID,
		Online:       s.online,
		SelectedChat: s.selectedChat,
		TypingChat:   s.typingChat,
		Closed:       s.closed,
	}
}
