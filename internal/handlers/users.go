package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chromechat-service/internal/models"
)

type UserService interface {
	Register(ctx context.Context, userID, username, email string) (models.User, bool, error)
	Get(ctx context.Context, userID string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// UserHandler serves profile and directory endpoints.
type UserHandler struct {
	users UserService
}

func NewUserHandler(users UserService) *UserHandler {
	return &UserHandler{users: users}
}

type directoryEntry struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	IsActive bool      `json:"is_active"`
	LastSeen time.Time `json:"last_seen"`
}

// Register bootstraps the caller's profile from the token identity.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := c.GetString("username")
	if req.Username != "" {
		username = req.Username
	}

	user, created, err := h.users.Register(c.Request.Context(), c.GetString("userID"), username, c.GetString("email"))
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, user)
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// List returns the user directory without private fields.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	self := c.GetString("userID")
	entries := make([]directoryEntry, 0, len(users))
	for _, u := range users {
		if u.ID == self {
			continue
		}
		entries = append(entries, directoryEntry{ID: u.ID, Username: u.Username, IsActive: u.IsActive, LastSeen: u.LastSeen})
	}
	c.JSON(http.StatusOK, gin.H{"users": entries})
}
