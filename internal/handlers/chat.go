package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chromechat-service/internal/models"
)

type ChatService interface {
	StartChat(ctx context.Context, callerID, friendID string) (models.Chat, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error)
	ListMessages(ctx context.Context, callerID, chatID string) ([]models.Message, error)
	SendMessage(ctx context.Context, senderID, chatID, text string) (models.Message, error)
	MarkRead(ctx context.Context, userID, chatID string) (bool, error)
	ClearChat(ctx context.Context, callerID, chatID string) (int64, error)
}

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	chats ChatService
}

func NewChatHandler(chats ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat creates or returns the chat with a friend.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chats.StartChat(c.Request.Context(), c.GetString("userID"), req.FriendID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chat.ID, "chat": chat})
}

// GetChatMessages returns the chat's messages in timestamp order.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	msgs, err := h.chats.ListMessages(c.Request.Context(), c.GetString("userID"), c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chats.SendMessage(c.Request.Context(), c.GetString("userID"), c.Param("chat_id"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ClearChat deletes every message of the chat.
func (h *ChatHandler) ClearChat(c *gin.Context) {
	deleted, err := h.chats.ClearChat(c.Request.Context(), c.GetString("userID"), c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	changed, err := h.chats.MarkRead(c.Request.Context(), c.GetString("userID"), c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}
