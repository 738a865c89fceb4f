package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"

	"chromechat-service/internal/models"
)

// DefaultRedisChannel carries hub events between instances.
const DefaultRedisChannel = "chromechat:events"

type relayEnvelope struct {
	Topic string       `json:"topic"`
	Event models.Event `json:"event"`
}

// RedisBroadcaster relays hub events over Redis pub/sub so subscribers
// connected to other instances receive them.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
}

func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBroadcaster{client: client, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, topic string, event models.Event) error {
	payload, err := encodeRelay(topic, event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Run delivers relayed events to hub until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context, hub *Hub) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	log.Printf("redis relay subscribed channel=%s", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic, event, err := decodeRelay([]byte(msg.Payload))
			if err != nil {
				log.Printf("redis relay decode failed: %v", err)
				continue
			}
			hub.Deliver(topic, event)
		}
	}
}

func encodeRelay(topic string, event models.Event) ([]byte, error) {
	return json.Marshal(relayEnvelope{Topic: topic, Event: event})
}

func decodeRelay(payload []byte) (string, models.Event, error) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", models.Event{}, err
	}
	return env.Topic, env.Event, nil
}
