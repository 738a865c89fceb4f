package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chromechat-service/internal/models"
	"chromechat-service/internal/observability"
)

// Conn is the write side of a websocket connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type ConnInfo struct {
	ConnID      string
	Kind        string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one subscribed connection. Writes are serialized.
type Client struct {
	conn Conn
	info ConnInfo
	mu   sync.Mutex
}

func NewClient(conn Conn, info ConnInfo) *Client {
	return &Client{conn: conn, info: info}
}

func (c *Client) Info() ConnInfo {
	return c.info
}

// Send writes event as a JSON text frame.
func (c *Client) Send(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// SendSnapshot writes the event built by load while holding the client's
// write lock, so deliveries racing with the snapshot are written after it.
func (c *Client) SendSnapshot(load func() (models.Event, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	event, err := load()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Relay fans events out to every service instance.
type Relay interface {
	Publish(ctx context.Context, topic string, event models.Event) error
}

// Hub maintains topic rooms of live subscribers.
type Hub struct {
	rooms    map[string]map[*Client]struct{}
	sessions map[string]int
	relay    Relay
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{}), sessions: make(map[string]int)}
}

// AttachSession counts an open session socket of userID and returns the
// number now open.
func (h *Hub) AttachSession(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[userID]++
	return h.sessions[userID]
}

// DetachSession releases one session socket of userID and returns how many
// remain on this instance.
func (h *Hub) DetachSession(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.sessions[userID] - 1
	if n <= 0 {
		delete(h.sessions, userID)
		return 0
	}
	h.sessions[userID] = n
	return n
}

// SetRelay routes published events through relay. The relay is expected
// to hand them back to Deliver on every instance, this one included.
func (h *Hub) SetRelay(relay Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = relay
}

func (h *Hub) Subscribe(topic string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[topic]; !ok {
		h.rooms[topic] = make(map[*Client]struct{})
	}
	h.rooms[topic][client] = struct{}{}
}

func (h *Hub) Unsubscribe(topic string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, topic)
		}
	}
}

// RoomSize returns the number of local subscribers of topic.
func (h *Hub) RoomSize(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// Publish sends event to every subscriber of topic.
func (h *Hub) Publish(topic string, event models.Event) {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	if relay != nil {
		err := relay.Publish(context.Background(), topic, event)
		if err == nil {
			return
		}
		log.Printf("relay publish failed, delivering locally: topic=%s err=%v", topic, err)
	}
	h.Deliver(topic, event)
}

// Deliver sends event to the local subscribers of topic. Clients that
// fail to receive it are dropped.
func (h *Hub) Deliver(topic string, event models.Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[topic]))
	for client := range h.rooms[topic] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.Send(event); err != nil {
			log.Printf("websocket write error: topic=%s conn_id=%s err=%v", topic, client.info.ConnID, err)
			_ = client.conn.Close()
			h.Unsubscribe(topic, client)
			publishWSEvent(context.Background(), client.info, "ws_error", err.Error())
		}
	}
}

func publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        info.Kind,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey(info.Kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(info.Kind, event)
}

func wsRoutingKey(kind string) string {
	if kind == "session" {
		return "ws_events.sessions"
	}
	return "ws_events.chats"
}
