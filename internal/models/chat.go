package models

import (
	"sort"
	"strings"
	"time"
)

// ChatIDSeparator joins the sorted participant ids into a chat id.
const ChatIDSeparator = "-"

// Chat represents a private chat between exactly two users.
type Chat struct {
	ID             string         `json:"id" bson:"_id" validate:"required"`
	ParticipantIDs []string       `json:"participant_ids" bson:"participantIds" validate:"len=2,dive,required"`
	UnreadCount    map[string]int `json:"unread_count" bson:"unreadCount" validate:"len=2,dive,gte=0"`
	CreatedAt      time.Time      `json:"created_at" bson:"createdAt"`
}

// ChatSummary provides an API-friendly view of a chat for one participant.
type ChatSummary struct {
	ChatID         string    `json:"chat_id"`
	FriendID       string    `json:"friend_id"`
	FriendUsername string    `json:"friend_username,omitempty"`
	FriendActive   bool      `json:"friend_active"`
	FriendLastSeen time.Time `json:"friend_last_seen"`
	Unread         int       `json:"unread"`
}

// SortedPair returns the two ids in ascending order.
func SortedPair(userA, userB string) []string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair
}

// ChatID derives the deterministic chat id for an unordered pair of users.
func ChatID(userA, userB string) string {
	return strings.Join(SortedPair(userA, userB), ChatIDSeparator)
}

// NewChat builds the initial chat document for a pair with zero unread counters.
func NewChat(userA, userB string, now time.Time) Chat {
	return Chat{
		ID:             ChatID(userA, userB),
		ParticipantIDs: SortedPair(userA, userB),
		UnreadCount:    map[string]int{userA: 0, userB: 0},
		CreatedAt:      now,
	}
}

// HasParticipant reports whether userID is one of the chat's participants.
func (c Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PartnerOf returns the other participant, or "" if userID is not a participant.
func (c Chat) PartnerOf(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// ChatPath is the document path of a chat.
func ChatPath(chatID string) string {
	return "chats/" + chatID
}
