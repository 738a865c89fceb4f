package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chromechat-service/internal/middleware"
	"chromechat-service/internal/models"
	"chromechat-service/internal/observability"
	"chromechat-service/internal/presence"
)

const sessionWriteTimeout = 5 * time.Second

// Client frame types on the session socket.
const (
	frameVisibility = "visibility"
	frameSelectChat = "select_chat"
	frameTyping     = "typing"
	frameHeartbeat  = "heartbeat"
)

type sessionFrame struct {
	Type    string `json:"type"`
	Visible *bool  `json:"visible,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	Typing  bool   `json:"typing,omitempty"`
}

// SessionWebSocketHandler drives a presence session from client frames
// and streams the user's own topic. Closing the socket unloads the session.
type SessionWebSocketHandler struct {
	hub       *Hub
	writer    presence.Writer
	validator middleware.TokenValidator
}

func NewSessionWebSocketHandler(hub *Hub, writer presence.Writer, validator middleware.TokenValidator) *SessionWebSocketHandler {
	return &SessionWebSocketHandler{hub: hub, writer: writer, validator: validator}
}

func (h *SessionWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chromechat-service/ws").Start(c.Request.Context(), "ws.session.handshake")
	defer span.End()

	identity, err := h.validator.ValidateToken(ctx, bearerFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := newConnInfo(c, "session", identity.UserID, span)
	client := NewClient(conn, info)
	topic := models.UserTopic(identity.UserID)
	h.hub.Subscribe(topic, client)

	session := presence.NewSession(identity.UserID, h.writer, h.hub)
	h.hub.AttachSession(identity.UserID)
	h.withTimeout(session.Mount)

	observability.IncWSActive("session")
	publishWSEvent(ctx, info, "ws_connect", "")

	go func() {
		var closeReason string
		defer func() {
			h.hub.Unsubscribe(topic, client)
			h.release(session)
			observability.DecWSActive("session")
			publishWSEvent(context.Background(), info, "ws_disconnect", closeReason)
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(context.Background(), info, "ws_error", closeReason)
				}
				return
			}
			if errMsg := h.apply(session, data); errMsg != "" {
				_ = client.Send(models.Event{Type: models.EventError, Error: errMsg})
			}
		}
	}()
}

// apply runs one client frame against the session and returns an error
// message for the client, or "".
func (h *SessionWebSocketHandler) apply(session *presence.Session, data []byte) string {
	var frame sessionFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return "invalid frame"
	}

	switch frame.Type {
	case frameVisibility:
		if frame.Visible == nil {
			return "visible is required"
		}
		visible := *frame.Visible
		h.withTimeout(func(ctx context.Context) { session.VisibilityChanged(ctx, visible) })
	case frameHeartbeat:
		h.withTimeout(session.Heartbeat)
	case frameSelectChat:
		ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
		defer cancel()
		if err := session.SelectChat(ctx, frame.ChatID); err != nil {
			return "cannot select chat"
		}
	case frameTyping:
		if !session.SetTyping(frame.ChatID, frame.Typing) {
			return "chat is not selected"
		}
	default:
		return "unknown frame type"
	}
	return ""
}

// release unloads the session when it was the user's last open socket,
// so closing one tab does not mark the user offline while another is open.
func (h *SessionWebSocketHandler) release(session *presence.Session) {
	if h.hub.DetachSession(session.UserID()) > 0 {
		session.Detach()
		return
	}
	h.withTimeout(session.Unload)
}

func (h *SessionWebSocketHandler) withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
	defer cancel()
	fn(ctx)
}
