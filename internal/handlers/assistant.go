package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chromechat-service/internal/models"
)

type AssistantService interface {
	Ask(ctx context.Context, userID, prompt string) (models.Message, models.Message, error)
}

type AssistantHandler struct {
	assistant AssistantService
}

func NewAssistantHandler(assistant AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

func (h *AssistantHandler) Ask(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prompt, reply, err := h.assistant.Ask(c.Request.Context(), c.GetString("userID"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": prompt, "reply": reply})
}
