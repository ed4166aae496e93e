package user

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
	"github.com/tripmate/companion/internal/profile"
)

// CollectionName is the MongoDB collection holding accounts.
const CollectionName = "users"

// profileProjection limits ranking reads to the fields scoring needs.
var profileProjection = bson.M{
	"_id":          1,
	"destinations": 1,
	"travel_style": 1,
	"budget":       1,
	"languages":    1,
	"age":          1,
}

// Store manages user documents in MongoDB.
type Store struct {
	coll *mongo.Collection
}

// NewStore creates a user store on the given database.
func NewStore(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(CollectionName)}
}

// Indexes returns the indexes the users collection needs.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
	}
}

// Create inserts a new account. The email is normalised and must be unique.
func (s *Store) Create(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.ID = primitive.NewObjectID().Hex()
	u.Email = NormalizeEmail(u.Email)
	u.TravelStyle = nonNil(u.TravelStyle)
	u.Destinations = nonNil(u.Destinations)
	u.Languages = nonNil(u.Languages)
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("User already exists")
		}
		return fmt.Errorf("user: insert: %w", err)
	}
	return nil
}

// GetByID loads an account.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail loads an account by its normalised email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": NormalizeEmail(email)})
}

// UpdateProfile applies upd to the stored user and returns the result.
func (s *Store) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := upd.Apply(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = time.Now().UTC()

	set := bson.M{
		"name":         u.Name,
		"gender":       u.Gender,
		"travel_style": u.TravelStyle,
		"destinations": u.Destinations,
		"budget":       u.Budget,
		"languages":    u.Languages,
		"bio":          u.Bio,
		"updated_at":   u.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if u.Age != nil {
		set["age"] = *u.Age
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return nil, fmt.Errorf("user: update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("user: update profile %s: %w", id, apperr.ErrNotFound)
	}
	return u, nil
}

// List returns up to limit users other than excludeID, newest first.
func (s *Store) List(ctx context.Context, excludeID string, limit int64) ([]User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetProjection(bson.M{"password_hash": 0})

	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$ne": excludeID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	users := []User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("user: list decode: %w", err)
	}
	return users, nil
}

// GetByIDs loads the given accounts in one query, keyed by ID. Unknown IDs
// are absent from the result.
func (s *Store) GetByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	opts := options.Find().SetProjection(bson.M{"password_hash": 0})
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("user: get by ids: %w", err)
	}
	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("user: get by ids decode: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ApplyRating folds a new review rating into the user's running average in a
// single atomic update.
func (s *Store) ApplyRating(ctx context.Context, id string, rating int) error {
	count := bson.D{{Key: "$ifNull", Value: bson.A{"$review_count", 0}}}
	current := bson.D{{Key: "$ifNull", Value: bson.A{"$rating", 0}}}
	newCount := bson.D{{Key: "$add", Value: bson.A{count, 1}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "rating", Value: bson.D{{Key: "$divide", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{
					bson.D{{Key: "$multiply", Value: bson.A{current, count}}},
					rating,
				}}},
				newCount,
			}}}},
			{Key: "review_count", Value: newCount},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	if err != nil {
		return fmt.Errorf("user: apply rating: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user: apply rating %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// GetProfile implements matching.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, id string) (profile.UserProfile, error) {
	var u User
	err := s.coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(profileProjection)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return profile.UserProfile{}, fmt.Errorf("user: profile %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return profile.UserProfile{}, fmt.Errorf("user: profile %s: %w", id, err)
	}
	return u.Profile(), nil
}

// ListProfilesExcept implements matching.ProfileStore.
func (s *Store) ListProfilesExcept(ctx context.Context, id string) ([]profile.UserProfile, error) {
	opts := options.Find().SetProjection(profileProjection)
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$ne": id}}, opts)
	if err != nil {
		return nil, fmt.Errorf("user: list profiles: %w", err)
	}
	defer cur.Close(ctx)

	var out []profile.UserProfile
	for cur.Next(ctx) {
		var u User
		if err := cur.Decode(&u); err != nil {
			return nil, fmt.Errorf("user: decode profile: %w", err)
		}
		out = append(out, u.Profile())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("user: list profiles: %w", err)
	}
	return out, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	err := s.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user: find: %w", err)
	}
	return &u, nil
}
