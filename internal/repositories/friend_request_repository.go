package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chromechat-service/internal/models"
)

const friendRequestColumns = `id, requester_id, recipient_id, status, created_at`

// FriendRequestRepo is a sqlx implementation of FriendRequestRepository.
// Rows are always addressed by (recipient_id, id), mirroring the
// recipient-owned document location.
type FriendRequestRepo struct {
	db sqlx.ExtContext
}

// NewFriendRequestRepo constructs a FriendRequestRepo.
func NewFriendRequestRepo(db sqlx.ExtContext) *FriendRequestRepo {
	return &FriendRequestRepo{db: db}
}

// Create stores a new friend request.
func (r *FriendRequestRepo) Create(ctx context.Context, req models.FriendRequest) error {
	if err := models.Validate(req); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO friend_requests (id, requester_id, recipient_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5)`, req.ID, req.RequesterID, req.RecipientID, req.Status, req.CreatedAt)
	switch pqCode(err) {
	case pqUniqueViolation:
		return ErrDuplicateFriendRequest
	case pqForeignKeyViolation:
		return ErrUserNotFound
	}
	return err
}

// Get fetches a request from the recipient's namespace.
func (r *FriendRequestRepo) Get(ctx context.Context, recipientID string, requestID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := sqlx.GetContext(ctx, r.db, &req, `SELECT `+friendRequestColumns+` FROM friend_requests
        WHERE recipient_id=$1 AND id=$2`, recipientID, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrFriendRequestNotFound
	}
	return req, err
}

// ListPending returns pending requests addressed to the recipient.
func (r *FriendRequestRepo) ListPending(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	reqs := []models.FriendRequest{}
	err := sqlx.SelectContext(ctx, r.db, &reqs, `SELECT `+friendRequestColumns+` FROM friend_requests
        WHERE recipient_id=$1 AND status=$2 ORDER BY created_at ASC`, recipientID, models.FriendRequestPending)
	return reqs, err
}

// FindPending returns the pending request from requester to recipient, if any.
func (r *FriendRequestRepo) FindPending(ctx context.Context, requesterID string, recipientID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := sqlx.GetContext(ctx, r.db, &req, `SELECT `+friendRequestColumns+` FROM friend_requests
        WHERE recipient_id=$1 AND requester_id=$2 AND status=$3 LIMIT 1`, recipientID, requesterID, models.FriendRequestPending)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrFriendRequestNotFound
	}
	return req, err
}

// Delete removes a request from the recipient's namespace.
func (r *FriendRequestRepo) Delete(ctx context.Context, recipientID string, requestID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE recipient_id=$1 AND id=$2`, recipientID, requestID)
	return expectRow(res, err, ErrFriendRequestNotFound)
}
