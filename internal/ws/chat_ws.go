package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chromechat-service/internal/middleware"
	"chromechat-service/internal/models"
	"chromechat-service/internal/observability"
	"chromechat-service/internal/repositories"
	"chromechat-service/internal/services"
)

// ChatReader is the read side of the chat service used by live queries.
type ChatReader interface {
	Chat(ctx context.Context, callerID, chatID string) (models.Chat, error)
	ListMessages(ctx context.Context, callerID, chatID string) ([]models.Message, error)
}

// ChatWebSocketHandler serves the live message query of one chat: a
// snapshot of the ordered messages followed by deltas.
type ChatWebSocketHandler struct {
	hub       *Hub
	chats     ChatReader
	validator middleware.TokenValidator
}

func NewChatWebSocketHandler(hub *Hub, chats ChatReader, validator middleware.TokenValidator) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, chats: chats, validator: validator}
}

// Handle upgrades the connection and subscribes it to the chat topic.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID := c.Param("chat_id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := otel.Tracer("chromechat-service/ws").Start(c.Request.Context(), "ws.chat.handshake")
	defer span.End()

	identity, err := h.validator.ValidateToken(ctx, bearerFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.chats.Chat(ctx, identity.UserID, chatID); err != nil {
		status, msg := handshakeError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := newConnInfo(c, "chat", identity.UserID, span)
	client := NewClient(conn, info)
	topic := models.ChatTopic(chatID)

	observability.IncWSActive("chat")
	publishWSEvent(ctx, info, "ws_connect", "")

	err = client.SendSnapshot(func() (models.Event, error) {
		h.hub.Subscribe(topic, client)
		loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msgs, err := h.chats.ListMessages(loadCtx, identity.UserID, chatID)
		if err != nil {
			return models.Event{}, err
		}
		return models.Event{Type: models.EventSnapshot, ChatID: chatID, Messages: msgs}, nil
	})
	if err != nil {
		h.hub.Unsubscribe(topic, client)
		observability.DecWSActive("chat")
		publishWSEvent(context.Background(), info, "ws_error", err.Error())
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot failed"))
		_ = conn.Close()
		return
	}

	go func() {
		var closeReason string
		defer func() {
			h.hub.Unsubscribe(topic, client)
			observability.DecWSActive("chat")
			publishWSEvent(context.Background(), info, "ws_disconnect", closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(context.Background(), info, "ws_error", closeReason)
				}
				return
			}
		}
	}()
}

func handshakeError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden, "not authorized for chat"
	case errors.Is(err, repositories.ErrChatNotFound):
		return http.StatusNotFound, "chat not found"
	default:
		return http.StatusServiceUnavailable, "chat unavailable"
	}
}
