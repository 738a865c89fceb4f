package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"chromechat-service/internal/auth"
	"chromechat-service/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bearerFromRequest reads the token from the Authorization header or, for
// browsers that cannot set headers on websocket requests, the token query
// parameter.
func bearerFromRequest(c *gin.Context) string {
	if token, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
		return token
	}
	return c.Query("token")
}

func newConnInfo(c *gin.Context, kind, userID string, span trace.Span) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		Kind:        kind,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
}
