package telemetry

import (
	"context"
	"log"
	"time"
)

type Publisher interface {
	PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// PermissionReporter forwards permission-denied failures to the error
// channel so clients can show a generic notice out of band.
type PermissionReporter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type PermissionEnvelope struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	OccurredAt    string            `json:"occurred_at"`
	Service       string            `json:"service"`
	Environment   string            `json:"environment"`
	RequestID     string            `json:"request_id"`
	UserID        string            `json:"user_id"`
	Payload       PermissionPayload `json:"payload"`
}

// PermissionPayload carries the structured context of a rejected operation.
type PermissionPayload struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Attempt any    `json:"attempt,omitempty"`
}

func NewPermissionReporter(publisher Publisher, routingKey, service, environment string) *PermissionReporter {
	return &PermissionReporter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

func (r *PermissionReporter) ReportPermission(ctx context.Context, requestID, userID, op, path string, attempt any) {
	if r == nil || r.publisher == nil {
		return
	}

	envelope := PermissionEnvelope{
		SchemaVersion: 1,
		EventType:     "permission_denied",
		OccurredAt:    r.now().UTC().Format(time.RFC3339Nano),
		Service:       r.service,
		Environment:   r.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: PermissionPayload{
			Op:      op,
			Path:    path,
			Attempt: attempt,
		},
	}

	headers := map[string]string{"x-request-id": requestID}
	if err := r.publisher.PublishWithHeaders(ctx, r.routingKey, envelope, headers); err != nil {
		log.Printf("permission report publish failed: op=%s path=%s err=%v", op, path, err)
	}
}
