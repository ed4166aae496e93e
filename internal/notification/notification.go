// Package notification stores in-app notifications and pushes each new one
// to the recipient's live connections through NATS.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tripmate/companion/internal/messaging"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/protocol"
)

// Type classifies a notification.
type Type string

const (
	TypeMatch        Type = "match"
	TypeMessage      Type = "message"
	TypeTripRequest  Type = "trip_request"
	TypeTripApproved Type = "trip_approved"
	TypeReview       Type = "review"
)

// ParseType validates a notification type string.
func ParseType(s string) (Type, bool) {
	switch t := Type(s); t {
	case TypeMatch, TypeMessage, TypeTripRequest, TypeTripApproved, TypeReview:
		return t, true
	}
	return "", false
}

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

// Notification is one entry in a user's notification feed.
type Notification struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"userId"`
	Type        Type      `bson:"type" json:"type"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	RelatedID   string    `bson:"related_id,omitempty" json:"relatedId,omitempty"`
	Read        bool      `bson:"read" json:"read"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	// List returns the user's notifications, newest first.
	List(ctx context.Context, userID string, limit int64) ([]Notification, error)
	// MarkRead fails with ErrForbidden when id belongs to another user.
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Service creates notifications and publishes them.
type Service struct {
	store Store
	pub   messaging.Publisher
}

// NewService creates a notification service. pub may be a
// messaging.NopPublisher when no push gateway is deployed.
func NewService(store Store, pub messaging.Publisher) *Service {
	return &Service{store: store, pub: pub}
}

// Notify stores a notification for userID and pushes it. A failed push is
// logged and does not fail the call; the feed remains the source of truth.
func (s *Service) Notify(ctx context.Context, userID string, kind Type, title, description, relatedID string) (*Notification, error) {
	n := &Notification{
		UserID:      userID,
		Type:        kind,
		Title:       title,
		Description: description,
		RelatedID:   relatedID,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("notification: create for %s: %w", userID, err)
	}

	frame, err := protocol.NewServerMessage(protocol.TypeNotification, protocol.NotificationMsg{
		ID:          n.ID,
		Kind:        string(n.Type),
		Title:       n.Title,
		Description: n.Description,
		RelatedID:   n.RelatedID,
		CreatedAt:   n.CreatedAt,
	})
	if err != nil {
		log.Printf("[notification] encode %s: %v", n.ID, err)
		return n, nil
	}
	if err := s.pub.PublishNotification(userID, frame); err != nil {
		log.Printf("[notification] publish %s to %s: %v", n.ID, userID, err)
		return n, nil
	}
	metrics.NotificationsPublished.Inc()
	return n, nil
}

// List returns the user's feed, newest first. A non-positive limit uses
// DefaultListLimit.
func (s *Service) List(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.List(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}
