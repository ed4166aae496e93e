package message

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding direct messages.
const CollectionName = "messages"

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionName)}
}

// Indexes returns the indexes the messages collection needs.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "read", Value: 1}}},
	}
}

func (s *MongoStore) Create(ctx context.Context, m *Message) error {
	m.ID = primitive.NewObjectID().Hex()
	m.Read = false
	m.CreatedAt = time.Now().UTC()
	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("message: insert: %w", err)
	}
	return nil
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
}

func (s *MongoStore) Thread(ctx context.Context, a, b string, limit int64) ([]Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.coll.Find(ctx, pairFilter(a, b), opts)
	if err != nil {
		return nil, fmt.Errorf("message: thread: %w", err)
	}
	msgs := []Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("message: thread decode: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *MongoStore) MarkThreadRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"sender_id": senderID, "receiver_id": receiverID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("message: mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

// Conversations groups the user's messages by partner in one aggregation.
func (s *MongoStore) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	partner := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$sender_id", userID}}},
		"$receiver_id",
		"$sender_id",
	}}}
	unread := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$receiver_id", userID}}},
			bson.D{{Key: "$eq", Value: bson.A{"$read", false}}},
		}}},
		1,
		0,
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"receiver_id": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: partner},
			{Key: "last_message", Value: bson.D{{Key: "$first", Value: "$content"}}},
			{Key: "last_time", Value: bson.D{{Key: "$first", Value: "$created_at"}}},
			{Key: "unread", Value: bson.D{{Key: "$sum", Value: unread}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_time", Value: -1}}}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("message: conversations: %w", err)
	}
	convs := []Conversation{}
	if err := cur.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("message: conversations decode: %w", err)
	}
	return convs, nil
}
