package models

import "time"

// AssistantUserID is the user id of the AI chatbot contact.
const AssistantUserID = "chromebot"

// User is the profile document stored under users/{id}.
type User struct {
	ID           string    `json:"id" bson:"_id" validate:"required,max=128"`
	Username     string    `json:"username" bson:"username" validate:"required,max=64"`
	Email        string    `json:"email" bson:"email" validate:"omitempty,email"`
	FriendIDs    []string  `json:"friend_ids" bson:"friendIds" validate:"dive,required"`
	IsActive     bool      `json:"is_active" bson:"isActive"`
	LastSeen     time.Time `json:"last_seen" bson:"lastSeen"`
	ActiveChatID *string   `json:"active_chat_id" bson:"activeChatId"`
	CreatedAt    time.Time `json:"created_at" bson:"createdAt"`
}

// HasFriend reports whether friendID is in the user's friend list.
func (u User) HasFriend(friendID string) bool {
	for _, id := range u.FriendIDs {
		if id == friendID {
			return true
		}
	}
	return false
}

// IsViewing reports whether the user is online with chatID focused.
func (u User) IsViewing(chatID string) bool {
	if u.ID == AssistantUserID {
		return true
	}
	return u.IsActive && u.ActiveChatID != nil && *u.ActiveChatID == chatID
}

// PresenceUpdate is a field-level patch of a user's presence fields.
// Nil fields are left untouched. ClearActiveChat sets activeChatId to null.
type PresenceUpdate struct {
	IsActive        *bool
	LastSeen        time.Time
	ActiveChatID    *string
	ClearActiveChat bool
}
