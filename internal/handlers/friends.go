package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chromechat-service/internal/models"
	"chromechat-service/internal/services"
)

type FriendService interface {
	SendFriendRequest(ctx context.Context, requesterID, recipientID string) (models.FriendRequest, error)
	ListPendingRequests(ctx context.Context, recipientID string) ([]models.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, callerID, requesterID, requestID string) (services.AcceptResult, error)
	RejectFriendRequest(ctx context.Context, callerID, requestID string) (bool, error)
	RemoveFriend(ctx context.Context, callerID, friendID string) error
}

// FriendHandler manages friend requests and friendships.
type FriendHandler struct {
	friends FriendService
}

func NewFriendHandler(friends FriendService) *FriendHandler {
	return &FriendHandler{friends: friends}
}

// ListRequests returns pending requests addressed to the caller.
func (h *FriendHandler) ListRequests(c *gin.Context) {
	reqs, err := h.friends.ListPendingRequests(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		RecipientID string `json:"recipient_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.friends.SendFriendRequest(c.Request.Context(), c.GetString("userID"), req.RecipientID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Accept runs the accept transaction. A request that was already handled
// answers 200 with status already_handled.
func (h *FriendHandler) Accept(c *gin.Context) {
	var req struct {
		RequesterID string `json:"requester_id"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.friends.AcceptFriendRequest(c.Request.Context(), c.GetString("userID"), req.RequesterID, c.Param("request_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if result.AlreadyHandled {
		c.JSON(http.StatusOK, gin.H{"status": "already_handled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "chat_id": result.ChatID, "chat_created": result.ChatCreated})
}

func (h *FriendHandler) Reject(c *gin.Context) {
	handled, err := h.friends.RejectFriendRequest(c.Request.Context(), c.GetString("userID"), c.Param("request_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if handled {
		c.JSON(http.StatusOK, gin.H{"status": "already_handled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	if err := h.friends.RemoveFriend(c.Request.Context(), c.GetString("userID"), c.Param("friend_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
