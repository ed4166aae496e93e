package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripmate/companion/internal/apperr"
)

// CollectionName is the MongoDB collection holding match records.
const CollectionName = "matches"

// Store is the MongoDB-backed MatchStore.
type Store struct {
	coll *mongo.Collection
}

// NewStore creates a match store on the given database.
func NewStore(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(CollectionName)}
}

// Indexes returns the indexes the matches collection needs. The unique
// pair_key index is what keeps one record per unordered pair.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_pair_key"),
		},
		{Keys: bson.D{{Key: "user_id1", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id2", Value: 1}, {Key: "created_at", Value: -1}}},
	}
}

// FindByPair looks the pair up under either ordering of the two IDs.
func (s *Store) FindByPair(ctx context.Context, a, b string) (*MatchRecord, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"user_id1": a, "user_id2": b},
		bson.M{"user_id1": b, "user_id2": a},
	}}
	return s.findOne(ctx, filter, "find pair")
}

// Create inserts rec, filling in its ID and timestamps.
func (s *Store) Create(ctx context.Context, rec *MatchRecord) error {
	now := time.Now().UTC()
	rec.ID = primitive.NewObjectID().Hex()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.PairKey == "" {
		rec.PairKey = PairKey(rec.UserID1, rec.UserID2)
	}

	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("matching: insert %s: %w", rec.PairKey, apperr.ErrConflict)
		}
		return fmt.Errorf("matching: insert: %w", err)
	}
	return nil
}

// Get loads a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*MatchRecord, error) {
	return s.findOne(ctx, bson.M{"_id": id}, "get")
}

// UpdateStatus performs a compare-and-set on the record's status.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status) (*MatchRecord, error) {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec MatchRecord
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.Conflict("match status changed, reload and retry")
	}
	if err != nil {
		return nil, fmt.Errorf("matching: update status: %w", err)
	}
	return &rec, nil
}

// ListByUser returns the user's records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, status Status) ([]MatchRecord, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"user_id1": userID},
		bson.M{"user_id2": userID},
	}}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("matching: list: %w", err)
	}
	recs := []MatchRecord{}
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("matching: list decode: %w", err)
	}
	return recs, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M, op string) (*MatchRecord, error) {
	var rec MatchRecord
	err := s.coll.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("matching: %s: %w", op, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("matching: %s: %w", op, err)
	}
	return &rec, nil
}
