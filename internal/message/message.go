// Package message implements direct messages between travellers: sending
// with moderation, threads, and the per-partner conversation list.
package message

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/messaging"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/moderation"
	"github.com/tripmate/companion/internal/notification"
	"github.com/tripmate/companion/internal/protocol"
	"github.com/tripmate/companion/internal/user"
)

// ThreadLimit is the number of most recent messages Thread returns.
const ThreadLimit = 500

// Message is a stored direct message.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	SenderID   string    `bson:"sender_id" json:"senderId"`
	ReceiverID string    `bson:"receiver_id" json:"receiverId"`
	Content    string    `bson:"content" json:"content"`
	Read       bool      `bson:"read" json:"read"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}

// Conversation summarises the exchange with one partner.
type Conversation struct {
	UserID          string    `bson:"_id" json:"userId"`
	UserName        string    `bson:"-" json:"userName"`
	LastMessage     string    `bson:"last_message" json:"lastMessage"`
	LastMessageTime time.Time `bson:"last_time" json:"lastMessageTime"`
	UnreadCount     int       `bson:"unread" json:"unreadCount"`
}

// Store persists messages.
type Store interface {
	Create(ctx context.Context, m *Message) error
	// Thread returns the newest limit messages between a and b, oldest first.
	Thread(ctx context.Context, a, b string, limit int64) ([]Message, error)
	// MarkThreadRead marks everything senderID sent to receiverID as read.
	MarkThreadRead(ctx context.Context, receiverID, senderID string) (int64, error)
	// Conversations returns one entry per partner, most recent first. UserName
	// is left empty.
	Conversations(ctx context.Context, userID string) ([]Conversation, error)
}

// Users resolves account names and existence.
type Users interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Notifier creates feed notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind notification.Type, title, description, relatedID string) (*notification.Notification, error)
}

// Service sends and reads direct messages.
type Service struct {
	store    Store
	users    Users
	filter   *moderation.Filter
	notifier Notifier
	pub      messaging.Publisher
}

func NewService(store Store, users Users, filter *moderation.Filter, notifier Notifier, pub messaging.Publisher) *Service {
	return &Service{
		store:    store,
		users:    users,
		filter:   filter,
		notifier: notifier,
		pub:      pub,
	}
}

// Send validates, screens and stores a message, then pushes it to the
// receiver and adds a "message" notification. Push and notification failures
// are logged only.
func (s *Service) Send(ctx context.Context, senderID, receiverID, content string) (*Message, error) {
	if receiverID == "" {
		return nil, apperr.Invalid("Missing required fields")
	}
	if senderID == receiverID {
		return nil, apperr.Invalid("Cannot message yourself")
	}
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	if res := s.filter.Check(content); res.Blocked {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		log.Printf("[message] blocked sender=%s reason=%s term=%s", senderID, res.Reason, res.Term)
		return nil, apperr.Invalid(res.Detail)
	}

	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		return nil, err
	}
	senderName := "Someone"
	if sender, err := s.users.GetByID(ctx, senderID); err == nil && sender.Name != "" {
		senderName = sender.Name
	}

	m := &Message{SenderID: senderID, ReceiverID: receiverID, Content: content}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("message: send: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	s.push(m)
	if _, err := s.notifier.Notify(ctx, receiverID, notification.TypeMessage,
		"New message from "+senderName, Preview(content), senderID); err != nil {
		log.Printf("[message] notify %s: %v", receiverID, err)
	}
	return m, nil
}

func (s *Service) push(m *Message) {
	frame, err := protocol.NewServerMessage(protocol.TypeMessage, protocol.DirectMsg{
		ID:      m.ID,
		From:    m.SenderID,
		Content: m.Content,
		SentAt:  m.CreatedAt,
	})
	if err != nil {
		log.Printf("[message] encode %s: %v", m.ID, err)
		return
	}
	if err := s.pub.PublishDirectMessage(m.ReceiverID, frame); err != nil {
		log.Printf("[message] publish %s: %v", m.ID, err)
	}
}

// Thread returns the conversation between me and other, oldest first, and
// marks the messages other sent to me as read.
func (s *Service) Thread(ctx context.Context, me, other string) ([]Message, error) {
	if other == "" {
		return nil, apperr.Invalid("Missing conversation partner")
	}
	msgs, err := s.store.Thread(ctx, me, other, ThreadLimit)
	if err != nil {
		return nil, fmt.Errorf("message: thread: %w", err)
	}
	if _, err := s.store.MarkThreadRead(ctx, me, other); err != nil {
		log.Printf("[message] mark read %s<-%s: %v", me, other, err)
	}
	return msgs, nil
}

// Recent returns up to n of the latest messages between a and b, oldest
// first. Abuse reports attach it as evidence.
func (s *Service) Recent(ctx context.Context, a, b string, n int64) ([]Message, error) {
	msgs, err := s.store.Thread(ctx, a, b, n)
	if err != nil {
		return nil, fmt.Errorf("message: recent: %w", err)
	}
	return msgs, nil
}

// Conversations lists the user's partners with the last message and unread
// count, most recent first.
func (s *Service) Conversations(ctx context.Context, me string) ([]Conversation, error) {
	convs, err := s.store.Conversations(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("message: conversations: %w", err)
	}
	for i := range convs {
		convs[i].UserName = "Unknown"
		u, err := s.users.GetByID(ctx, convs[i].UserID)
		switch {
		case err == nil:
			convs[i].UserName = u.Name
		case !errors.Is(err, apperr.ErrNotFound):
			log.Printf("[message] resolve partner %s: %v", convs[i].UserID, err)
		}
	}
	return convs, nil
}
