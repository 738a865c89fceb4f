package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"

	"chromechat-service/internal/models"
	"chromechat-service/internal/observability"
	"chromechat-service/internal/repositories"
)

var tracer = otel.Tracer("chromechat-service/services")

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends   = errors.New("users are already friends")
	ErrReversePending   = errors.New("a friend request from this user is already pending")
	ErrNotFriends       = errors.New("users are not friends")
	ErrSelfChat         = errors.New("cannot start a chat with yourself")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrUnavailable      = errors.New("document store unavailable")
	ErrChatIDConflict   = errors.New("chat id already belongs to another pair")
)

// PermissionError describes an operation rejected by document ownership
// rules. It unwraps to ErrPermissionDenied.
type PermissionError struct {
	Op      string
	Path    string
	UserID  string
	Payload any
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s on %s by %s: permission denied", e.Op, e.Path, e.UserID)
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}

// ErrorReporter is the out-of-band channel for permission failures.
type ErrorReporter interface {
	ReportPermission(ctx context.Context, requestID, userID, op, path string, attempt any)
}

// Notifier pushes live-query deltas to subscribers of a topic.
type Notifier interface {
	Publish(topic string, event models.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, models.Event) {}

type nopReporter struct{}

func (nopReporter) ReportPermission(context.Context, string, string, string, string, any) {}

// base carries the collaborators shared by every service.
type base struct {
	store    repositories.Store
	notifier Notifier
	reporter ErrorReporter
}

func newBase(store repositories.Store) base {
	return base{store: store, notifier: nopNotifier{}, reporter: nopReporter{}}
}

func (b *base) SetNotifier(n Notifier) {
	if n != nil {
		b.notifier = n
	}
}

func (b *base) SetErrorReporter(r ErrorReporter) {
	if r != nil {
		b.reporter = r
	}
}

func (b *base) deny(ctx context.Context, userID, op, path string, payload any) error {
	log.Printf("permission denied: op=%s path=%s user_id=%s", op, path, userID)
	observability.IncPermissionDenied(op)
	b.reporter.ReportPermission(ctx, observability.RequestIDFromContext(ctx), userID, op, path, payload)
	return &PermissionError{Op: op, Path: path, UserID: userID, Payload: payload}
}

func (b *base) notifyUsers(event models.Event, userIDs ...string) {
	for _, id := range userIDs {
		b.notifier.Publish(models.UserTopic(id), event)
	}
}

// storeErr maps backend failures that are not domain sentinels to ErrUnavailable.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var permErr *PermissionError
	switch {
	case errors.As(err, &permErr),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrFriendRequestNotFound),
		errors.Is(err, repositories.ErrChatNotFound),
		errors.Is(err, repositories.ErrDuplicateFriendRequest),
		errors.Is(err, models.ErrInvalidDocument),
		errors.Is(err, ErrSelfRequest),
		errors.Is(err, ErrAlreadyFriends),
		errors.Is(err, ErrReversePending),
		errors.Is(err, ErrNotFriends),
		errors.Is(err, ErrSelfChat),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrChatIDConflict),
		errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
