package trip

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripmate/companion/internal/apperr"
)

// Collection names.
const (
	CollectionName        = "trips"
	ReviewsCollectionName = "reviews"
)

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	trips   *mongo.Collection
	reviews *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		trips:   db.Collection(CollectionName),
		reviews: db.Collection(ReviewsCollectionName),
	}
}

// Indexes returns the indexes the trips collection needs.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
}

// ReviewIndexes returns the indexes the reviews collection needs. One review
// per reviewer, reviewee and trip.
func ReviewIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "trip_id", Value: 1},
				{Key: "reviewer_id", Value: 1},
				{Key: "reviewee_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_review"),
		},
		{Keys: bson.D{{Key: "reviewee_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
}

func (s *MongoStore) Create(ctx context.Context, t *Trip) error {
	now := time.Now().UTC()
	t.ID = primitive.NewObjectID().Hex()
	t.CreatedAt = now
	t.UpdatedAt = now
	if _, err := s.trips.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("trip: insert: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Trip, error) {
	var t Trip
	err := s.trips.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("Trip not found")
	}
	if err != nil {
		return nil, fmt.Errorf("trip: get %s: %w", id, err)
	}
	return &t, nil
}

func (s *MongoStore) List(ctx context.Context, f ListFilter) ([]Trip, error) {
	filter := bson.M{}
	if f.Destination != "" {
		filter["destination"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Destination), Options: "i"}
	}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(f.Limit)

	cur, err := s.trips.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("trip: list: %w", err)
	}
	trips := []Trip{}
	if err := cur.All(ctx, &trips); err != nil {
		return nil, fmt.Errorf("trip: list decode: %w", err)
	}
	return trips, nil
}

// AddCompanion is a single conditional update so two users can never take
// the last slot at once.
func (s *MongoStore) AddCompanion(ctx context.Context, tripID, userID string) (*Trip, error) {
	filter := bson.M{
		"_id":        tripID,
		"owner_id":   bson.M{"$ne": userID},
		"companions": bson.M{"$ne": userID},
		"status":     bson.M{"$ne": StatusCompleted},
		"$expr": bson.M{"$lt": bson.A{
			bson.M{"$size": "$companions"},
			"$max_companions",
		}},
	}
	update := bson.M{
		"$push": bson.M{"companions": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var t Trip
	err := s.trips.FindOneAndUpdate(ctx, filter, update, opts).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("trip: join %s: %w", tripID, apperr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("trip: join %s: %w", tripID, err)
	}
	return &t, nil
}

func (s *MongoStore) CreateReview(ctx context.Context, r *Review) error {
	r.ID = primitive.NewObjectID().Hex()
	r.CreatedAt = time.Now().UTC()
	if _, err := s.reviews.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("trip: review %s: %w", r.TripID, apperr.ErrConflict)
		}
		return fmt.Errorf("trip: insert review: %w", err)
	}
	return nil
}

func (s *MongoStore) ListReviews(ctx context.Context, tripID string) ([]Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.reviews.Find(ctx, bson.M{"trip_id": tripID}, opts)
	if err != nil {
		return nil, fmt.Errorf("trip: list reviews: %w", err)
	}
	reviews := []Review{}
	if err := cur.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("trip: list reviews decode: %w", err)
	}
	return reviews, nil
}
