package notification

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripmate/companion/internal/apperr"
)

// CollectionName is the MongoDB collection holding notifications.
const CollectionName = "notifications"

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionName)}
}

// Indexes returns the indexes the notifications collection needs.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
}

func (s *MongoStore) Create(ctx context.Context, n *Notification) error {
	n.ID = primitive.NewObjectID().Hex()
	n.Read = false
	n.CreatedAt = time.Now().UTC()
	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("notification: insert: %w", err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("notification: list: %w", err)
	}
	out := []Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("notification: list decode: %w", err)
	}
	return out, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("notification: mark read: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("notification: mark read lookup: %w", err)
	}
	if n > 0 {
		return apperr.Forbidden("Not your notification")
	}
	return apperr.NotFound("Notification not found")
}

func (s *MongoStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"user_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("notification: mark all read: %w", err)
	}
	return res.ModifiedCount, nil
}
