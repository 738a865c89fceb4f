// Package mongostore implements repositories.Store on MongoDB. Multi-document
// batches run inside a session transaction, so the deployment must be a
// replica set.
package mongostore

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chromechat-service/internal/models"
	"chromechat-service/internal/repositories"
)

const (
	usersCollection          = "users"
	friendRequestsCollection = "friendRequests"
	chatsCollection          = "chats"
	messagesCollection       = "messages"
)

// Store is the MongoDB implementation of repositories.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	inTx   bool
}

// NewStore constructs a Store over an already connected database.
func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{client: client, db: db}
}

func (s *Store) Users() repositories.UserRepository {
	return &userRepo{coll: s.db.Collection(usersCollection)}
}

func (s *Store) FriendRequests() repositories.FriendRequestRepository {
	return &friendRequestRepo{coll: s.db.Collection(friendRequestsCollection), users: s.db.Collection(usersCollection)}
}

func (s *Store) Chats() repositories.ChatRepository {
	return &chatRepo{coll: s.db.Collection(chatsCollection)}
}

func (s *Store) Messages() repositories.MessageRepository {
	return &messageRepo{coll: s.db.Collection(messagesCollection), chats: s.db.Collection(chatsCollection)}
}

// WithinTx runs fn inside a session transaction. The transaction is
// attempted exactly once: transient and unknown-commit errors are returned
// to the caller instead of being retried.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(context.Background())

	tx := &Store{client: s.client, db: s.db, inTx: true}
	return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		return runTransaction(sc, sc, func() error { return fn(sc, tx) })
	})
}

// transaction is the part of mongo.SessionContext that drives one
// transaction.
type transaction interface {
	StartTransaction(opts ...*options.TransactionOptions) error
	AbortTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
}

func runTransaction(ctx context.Context, txn transaction, fn func() error) error {
	if err := txn.StartTransaction(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if abortErr := txn.AbortTransaction(context.Background()); abortErr != nil {
			log.Printf("mongo abort transaction failed: %v", abortErr)
		}
		return err
	}
	return txn.CommitTransaction(ctx)
}

// Ping checks the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(friendRequestsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recipientId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("byRecipient_status"),
		},
		{
			Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "requesterId", Value: 1}},
			Options: options.Index().SetName("uniquePendingPair").SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(models.FriendRequestPending)}),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(chatsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participantIds", Value: 1}},
		Options: options.Index().SetName("byParticipant"),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chatId", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetName("chatId_timestamp_idx"),
	})
	return err
}

type userRepo struct {
	coll *mongo.Collection
}

func (r *userRepo) Create(ctx context.Context, user models.User) (bool, error) {
	if err := models.Validate(user); err != nil {
		return false, err
	}
	friendIDs := user.FriendIDs
	if friendIDs == nil {
		friendIDs = []string{}
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$setOnInsert": bson.M{
		"username":     user.Username,
		"email":        user.Email,
		"friendIds":    friendIDs,
		"isActive":     user.IsActive,
		"lastSeen":     user.LastSeen,
		"activeChatId": user.ActiveChatID,
		"createdAt":    user.CreatedAt,
	}}, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (r *userRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, repositories.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if user.FriendIDs == nil {
		user.FriendIDs = []string{}
	}
	return user, nil
}

func (r *userRepo) List(ctx context.Context) ([]models.User, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepo) AddFriend(ctx context.Context, userID string, friendID string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"friendIds": friendID}})
	return expectMatch(res, err, repositories.ErrUserNotFound)
}

func (r *userRepo) RemoveFriend(ctx context.Context, userID string, friendID string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"friendIds": friendID}})
	return expectMatch(res, err, repositories.ErrUserNotFound)
}

func (r *userRepo) UpdatePresence(ctx context.Context, userID string, update models.PresenceUpdate) error {
	set := bson.M{}
	if update.IsActive != nil {
		set["isActive"] = *update.IsActive
	}
	if !update.LastSeen.IsZero() {
		set["lastSeen"] = update.LastSeen
	}
	switch {
	case update.ClearActiveChat:
		set["activeChatId"] = nil
	case update.ActiveChatID != nil:
		set["activeChatId"] = *update.ActiveChatID
	}
	if len(set) == 0 {
		_, err := r.Get(ctx, userID)
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	return expectMatch(res, err, repositories.ErrUserNotFound)
}

type friendRequestRepo struct {
	coll  *mongo.Collection
	users *mongo.Collection
}

func (r *friendRequestRepo) Create(ctx context.Context, req models.FriendRequest) error {
	if err := models.Validate(req); err != nil {
		return err
	}
	count, err := r.users.CountDocuments(ctx, bson.M{"_id": req.RecipientID})
	if err != nil {
		return err
	}
	if count == 0 {
		return repositories.ErrUserNotFound
	}
	_, err = r.coll.InsertOne(ctx, req)
	if mongo.IsDuplicateKeyError(err) {
		return repositories.ErrDuplicateFriendRequest
	}
	return err
}

func (r *friendRequestRepo) Get(ctx context.Context, recipientID string, requestID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.coll.FindOne(ctx, bson.M{"_id": requestID, "recipientId": recipientID}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.FriendRequest{}, repositories.ErrFriendRequestNotFound
	}
	return req, err
}

func (r *friendRequestRepo) ListPending(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"recipientId": recipientID, "status": models.FriendRequestPending},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	reqs := []models.FriendRequest{}
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *friendRequestRepo) FindPending(ctx context.Context, requesterID string, recipientID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.coll.FindOne(ctx, bson.M{
		"recipientId": recipientID,
		"requesterId": requesterID,
		"status":      models.FriendRequestPending,
	}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.FriendRequest{}, repositories.ErrFriendRequestNotFound
	}
	return req, err
}

func (r *friendRequestRepo) Delete(ctx context.Context, recipientID string, requestID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": requestID, "recipientId": recipientID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repositories.ErrFriendRequestNotFound
	}
	return nil
}

type chatRepo struct {
	coll *mongo.Collection
}

func unreadPath(userID string) string {
	return "unreadCount." + userID
}

func (r *chatRepo) CreateIfAbsent(ctx context.Context, chat models.Chat) (bool, error) {
	if err := models.Validate(chat); err != nil {
		return false, err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": chat.ID}, bson.M{"$setOnInsert": bson.M{
		"participantIds": chat.ParticipantIDs,
		"unreadCount":    chat.UnreadCount,
		"createdAt":      chat.CreatedAt,
	}}, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (r *chatRepo) Get(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.coll.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, err
}

func (r *chatRepo) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"participantIds": userID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	chats := []models.Chat{}
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *chatRepo) IncrementUnread(ctx context.Context, chatID string, userID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": chatID, unreadPath(userID): bson.M{"$exists": true}},
		bson.M{"$inc": bson.M{unreadPath(userID): 1}})
	return expectMatch(res, err, repositories.ErrChatNotFound)
}

func (r *chatRepo) ResetUnread(ctx context.Context, chatID string, userID string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": chatID, unreadPath(userID): bson.M{"$exists": true, "$ne": 0}},
		bson.M{"$set": bson.M{unreadPath(userID): 0}})
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": chatID, unreadPath(userID): bson.M{"$exists": true}})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, repositories.ErrChatNotFound
	}
	return false, nil
}

func (r *chatRepo) Delete(ctx context.Context, chatID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": chatID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repositories.ErrChatNotFound
	}
	return nil
}

type messageRepo struct {
	coll  *mongo.Collection
	chats *mongo.Collection
}

func (r *messageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := models.Validate(msg); err != nil {
		return models.Message{}, err
	}
	count, err := r.chats.CountDocuments(ctx, bson.M{"_id": msg.ChatID})
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		return models.Message{}, repositories.ErrChatNotFound
	}
	msg.Timestamp = time.Now().UTC()
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (r *messageRepo) List(ctx context.Context, chatID string) ([]models.Message, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"chatId": chatID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepo) DeleteAll(ctx context.Context, chatID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"chatId": chatID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func expectMatch(res *mongo.UpdateResult, err error, notFound error) error {
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notFound
	}
	return nil
}

var _ repositories.Store = (*Store)(nil)
