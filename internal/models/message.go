package models

import "time"

// Message is stored under chats/{chatId}/messages/{id}.
type Message struct {
	ID        string    `db:"id" json:"id" bson:"_id" validate:"required"`
	ChatID    string    `db:"chat_id" json:"chat_id" bson:"chatId" validate:"required"`
	SenderID  string    `db:"sender_id" json:"sender_id" bson:"senderId" validate:"required"`
	Text      string    `db:"text" json:"text" bson:"text" validate:"required,max=4000"`
	Timestamp time.Time `db:"created_at" json:"timestamp" bson:"timestamp"`
	Read      bool      `db:"read" json:"read" bson:"read"`
}

// MessagesPath is the collection path of a chat's messages.
func MessagesPath(chatID string) string {
	return ChatPath(chatID) + "/messages"
}
