package models

// Event types pushed to live subscribers.
const (
	EventSnapshot        = "snapshot"
	EventMessage         = "message"
	EventCleared         = "cleared"
	EventTyping          = "typing"
	EventFriendRequest   = "friend_request"
	EventRequestResolved = "friend_request_resolved"
	EventChatCreated     = "chat_created"
	EventChatUpdated     = "chat_updated"
	EventChatRemoved     = "chat_removed"
	EventPresence        = "presence"
	EventError           = "error"
)

// Event is broadcast through websockets.
type Event struct {
	Type      string         `json:"type"`
	ChatID    string         `json:"chat_id,omitempty"`
	Message   *Message       `json:"message,omitempty"`
	Messages  []Message      `json:"messages,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Request   *FriendRequest `json:"request,omitempty"`
	Chat      *Chat          `json:"chat,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	IsActive  *bool          `json:"is_active,omitempty"`
	Typing    *bool          `json:"typing,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ChatTopic is the live-query topic for a chat's message stream.
func ChatTopic(chatID string) string {
	return "chat:" + chatID
}

// UserTopic is the live-query topic for a user's own documents.
func UserTopic(userID string) string {
	return "user:" + userID
}
