package observability

import (
	"context"
)

// Publisher is the event sink used for lifecycle and domain events.
type Publisher interface {
	PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishWithHeaders(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// PublishDomainEvent publishes a chat_events envelope with headers derived
// from ctx.
func PublishDomainEvent(ctx context.Context, name string, payload interface{}) {
	_ = PublishEvent(ctx, "chat_events."+name, EventEnvelope{
		EventType: "chat_events",
		EventName: name,
		Payload:   payload,
	}, HeadersFromContext(ctx))
}
