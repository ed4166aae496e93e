package trip

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/moderation"
	"github.com/tripmate/companion/internal/notification"
	"github.com/tripmate/companion/internal/user"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Store persists trips and reviews.
type Store interface {
	Create(ctx context.Context, t *Trip) error
	Get(ctx context.Context, id string) (*Trip, error)
	// List returns trips newest first.
	List(ctx context.Context, f ListFilter) ([]Trip, error)
	// AddCompanion appends userID to the trip's companions only if the user
	// is not the owner, has not joined yet and a slot is free. It returns an
	// error wrapping apperr.ErrConflict when any condition fails.
	AddCompanion(ctx context.Context, tripID, userID string) (*Trip, error)
	// CreateReview returns an error wrapping apperr.ErrConflict for a second
	// review of the same reviewee on the same trip.
	CreateReview(ctx context.Context, r *Review) error
	ListReviews(ctx context.Context, tripID string) ([]Review, error)
}

// Users is the slice of the user store trips depend on.
type Users interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	ApplyRating(ctx context.Context, id string, rating int) error
}

// Notifier creates feed notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind notification.Type, title, description, relatedID string) (*notification.Notification, error)
}

// Service implements the trip operations.
type Service struct {
	store    Store
	users    Users
	filter   *moderation.Filter
	notifier Notifier
}

func NewService(store Store, users Users, filter *moderation.Filter, notifier Notifier) *Service {
	return &Service{store: store, users: users, filter: filter, notifier: notifier}
}

// Create validates and stores a new trip owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (*Trip, error) {
	t, err := req.build(ownerID)
	if err != nil {
		return nil, err
	}
	for _, text := range append([]string{t.Destination, t.Description}, t.Activities...) {
		if res := s.filter.CheckTerms(text); res.Blocked {
			return nil, apperr.Invalid(res.Detail)
		}
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("trip: create: %w", err)
	}
	log.Printf("[trip] created trip=%s owner=%s destination=%q", t.ID, ownerID, t.Destination)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Trip, error) {
	return s.store.Get(ctx, id)
}

// List returns trips newest first, optionally filtered by destination.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Trip, error) {
	f.Destination = strings.TrimSpace(f.Destination)
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	return s.store.List(ctx, f)
}

// RequestJoin adds userID as a companion and notifies both sides.
func (s *Service) RequestJoin(ctx context.Context, tripID, userID string) (*Trip, error) {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := joinable(t, userID); err != nil {
		return nil, err
	}

	updated, err := s.store.AddCompanion(ctx, tripID, userID)
	if errors.Is(err, apperr.ErrConflict) {
		// Lost a race; report what changed.
		if t, gerr := s.store.Get(ctx, tripID); gerr == nil {
			if jerr := joinable(t, userID); jerr != nil {
				return nil, jerr
			}
		}
		return nil, apperr.Conflict("Trip changed, please retry")
	}
	if err != nil {
		return nil, fmt.Errorf("trip: join %s: %w", tripID, err)
	}

	name := "Someone"
	if u, err := s.users.GetByID(ctx, userID); err == nil && u.Name != "" {
		name = u.Name
	}
	s.notify(ctx, updated.OwnerID, notification.TypeTripRequest,
		name+" wants to join your trip",
		fmt.Sprintf("They're interested in your %s trip starting %s", updated.Destination, updated.StartDate.Format("Jan 2, 2006")),
		updated.ID)
	s.notify(ctx, userID, notification.TypeTripApproved,
		"You joined a trip to "+updated.Destination,
		fmt.Sprintf("The trip starts %s. Say hello to your fellow travellers!", updated.StartDate.Format("Jan 2, 2006")),
		updated.ID)

	log.Printf("[trip] user=%s joined trip=%s (%d/%d)", userID, tripID, len(updated.Companions), updated.MaxCompanions)
	return updated, nil
}

func joinable(t *Trip, userID string) error {
	switch {
	case t.OwnerID == userID:
		return apperr.Invalid("You cannot join your own trip")
	case t.Participant(userID):
		return apperr.Conflict("Already requested or joined")
	case t.Full():
		return apperr.Conflict("Trip is full")
	case t.Status == StatusCompleted:
		return apperr.Invalid("Trip is already completed")
	}
	return nil
}

// Review records reviewerID's rating of another participant of the trip and
// folds it into the reviewee's average.
func (s *Service) Review(ctx context.Context, tripID, reviewerID string, req ReviewRequest) (*Review, error) {
	if req.Rating < MinRating || req.Rating > MaxRating {
		return nil, apperr.Invalid("Rating must be between 1 and 5")
	}
	if req.RevieweeID == "" {
		return nil, apperr.Invalid("revieweeId is required")
	}
	if req.RevieweeID == reviewerID {
		return nil, apperr.Invalid("You cannot review yourself")
	}
	comment := strings.TrimSpace(req.Comment)
	if len([]rune(comment)) > MaxDescriptionChars {
		return nil, apperr.Invalid("Comment is too long")
	}
	if res := s.filter.CheckTerms(comment); res.Blocked {
		return nil, apperr.Invalid(res.Detail)
	}

	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !t.Participant(reviewerID) {
		return nil, apperr.Forbidden("Only trip participants can leave reviews")
	}
	if !t.Participant(req.RevieweeID) {
		return nil, apperr.Invalid("Reviewee did not take part in this trip")
	}

	r := &Review{
		TripID:     tripID,
		ReviewerID: reviewerID,
		RevieweeID: req.RevieweeID,
		Rating:     req.Rating,
		Comment:    comment,
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("You already reviewed this traveller for this trip")
		}
		return nil, fmt.Errorf("trip: review: %w", err)
	}
	if err := s.users.ApplyRating(ctx, req.RevieweeID, req.Rating); err != nil {
		return nil, fmt.Errorf("trip: apply rating: %w", err)
	}

	name := "Someone"
	if u, err := s.users.GetByID(ctx, reviewerID); err == nil && u.Name != "" {
		name = u.Name
	}
	s.notify(ctx, req.RevieweeID, notification.TypeReview,
		name+" left you a review",
		fmt.Sprintf("%d/5 for your %s trip", req.Rating, t.Destination),
		t.ID)
	return r, nil
}

func (s *Service) ListReviews(ctx context.Context, tripID string) ([]Review, error) {
	if _, err := s.store.Get(ctx, tripID); err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, tripID)
}

func (s *Service) notify(ctx context.Context, userID string, kind notification.Type, title, description, relatedID string) {
	if _, err := s.notifier.Notify(ctx, userID, kind, title, description, relatedID); err != nil {
		log.Printf("[trip] notify %s (%s): %v", userID, kind, err)
	}
}
