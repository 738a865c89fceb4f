package models

import "time"

// FriendRequestStatus is the lifecycle state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest lives under the recipient's namespace:
// users/{recipientId}/friendRequests/{id}.
type FriendRequest struct {
	ID          string              `db:"id" json:"id" bson:"_id" validate:"required"`
	RequesterID string              `db:"requester_id" json:"requester_id" bson:"requesterId" validate:"required,nefield=RecipientID"`
	RecipientID string              `db:"recipient_id" json:"recipient_id" bson:"recipientId" validate:"required"`
	Status      FriendRequestStatus `db:"status" json:"status" bson:"status" validate:"required,oneof=pending accepted rejected"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at" bson:"createdAt"`
}

// FriendRequestPath is the document path of a friend request.
func FriendRequestPath(recipientID, requestID string) string {
	return "users/" + recipientID + "/friendRequests/" + requestID
}
