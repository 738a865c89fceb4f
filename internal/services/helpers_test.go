package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories"
	"chromechat-service/internal/repositories/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]models.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: map[string][]models.Event{}}
}

func (n *recordingNotifier) Publish(topic string, event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[topic] = append(n.events[topic], event)
}

func (n *recordingNotifier) types(topic string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events[topic] {
		out = append(out, e.Type)
	}
	return out
}

type permissionReport struct {
	userID, op, path string
}

type recordingReporter struct {
	reports []permissionReport
}

func (r *recordingReporter) ReportPermission(ctx context.Context, requestID, userID, op, path string, attempt any) {
	r.reports = append(r.reports, permissionReport{userID: userID, op: op, path: path})
}

func seedUsers(t *testing.T, store *memory.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := store.Users().Create(context.Background(), models.User{
			ID:        id,
			Username:  "name-" + id,
			FriendIDs: []string{},
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
}

// faultyStore wraps a store with injected failures: user reads listed in
// userGetErr fail, and when requestRaced is set a friend request delete
// inside a transaction finds the row already gone, as it does when a
// concurrent accept committed first.
type faultyStore struct {
	repositories.Store
	userGetErr   map[string]error
	requestRaced bool
}

func (f *faultyStore) Users() repositories.UserRepository {
	return &faultyUsers{UserRepository: f.Store.Users(), getErr: f.userGetErr}
}

func (f *faultyStore) FriendRequests() repositories.FriendRequestRepository {
	return &racedRequests{FriendRequestRepository: f.Store.FriendRequests(), raced: f.requestRaced}
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		return fn(ctx, &faultyStore{Store: tx, userGetErr: f.userGetErr, requestRaced: f.requestRaced})
	})
}

type faultyUsers struct {
	repositories.UserRepository
	getErr map[string]error
}

func (u *faultyUsers) Get(ctx context.Context, userID string) (models.User, error) {
	if err := u.getErr[userID]; err != nil {
		return models.User{}, err
	}
	return u.UserRepository.Get(ctx, userID)
}

type racedRequests struct {
	repositories.FriendRequestRepository
	raced bool
}

func (r *racedRequests) Delete(ctx context.Context, recipientID, requestID string) error {
	if r.raced {
		return repositories.ErrFriendRequestNotFound
	}
	return r.FriendRequestRepository.Delete(ctx, recipientID, requestID)
}
