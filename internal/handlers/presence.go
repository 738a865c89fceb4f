package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chromechat-service/internal/models"
)

type PresenceService interface {
	GoOnline(ctx context.Context, userID string) error
	GoOffline(ctx context.Context, userID string) error
	SetActiveChat(ctx context.Context, userID, chatID string) error
	Get(ctx context.Context, userID string) (models.User, error)
}

// PresenceHandler is the HTTP fallback for clients without a session socket.
type PresenceHandler struct {
	presence PresenceService
}

func NewPresenceHandler(presence PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

func (h *PresenceHandler) Update(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	var err error
	if *req.IsActive {
		err = h.presence.GoOnline(c.Request.Context(), userID)
	} else {
		err = h.presence.GoOffline(c.Request.Context(), userID)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondPresence(c, userID)
}

// SetActiveChat focuses a chat; a null or empty chat_id clears the focus.
func (h *PresenceHandler) SetActiveChat(c *gin.Context) {
	var req struct {
		ChatID *string `json:"chat_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatID := ""
	if req.ChatID != nil {
		chatID = *req.ChatID
	}
	userID := c.GetString("userID")
	if err := h.presence.SetActiveChat(c.Request.Context(), userID, chatID); err != nil {
		writeError(c, err)
		return
	}
	h.respondPresence(c, userID)
}

func (h *PresenceHandler) respondPresence(c *gin.Context, userID string) {
	user, err := h.presence.Get(c.Request.Context(), userID)
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"is_active":      user.IsActive,
		"last_seen":      user.LastSeen,
		"active_chat_id": user.ActiveChatID,
	})
}
