// Package messaging provides a NATS client wrapper for the events that flow
// from the API to the push gateway. Every subject is scoped to one user so a
// gateway only receives traffic for the users connected to it.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject prefixes. Each is followed by ".<user_id>".
const (
	SubjectNotify   = "notify"
	SubjectDirect   = "dm"
	SubjectPresence = "presence"
)

// UserSubject returns the subject for prefix scoped to userID.
func UserSubject(prefix, userID string) string {
	return prefix + "." + userID
}

// Publisher is the write side used by the API services. Payloads are
// complete push frames; the gateway forwards them unchanged.
type Publisher interface {
	PublishNotification(userID string, data []byte) error
	PublishDirectMessage(userID string, data []byte) error
}

// NopPublisher discards every event. It is used when NATS_URL is empty.
type NopPublisher struct{}

func (NopPublisher) PublishNotification(string, []byte) error  { return nil }
func (NopPublisher) PublishDirectMessage(string, []byte) error { return nil }

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string][]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "tripmate",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string][]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishNotification publishes a notification frame on notify.<userID>.
func (c *NATSClient) PublishNotification(userID string, data []byte) error {
	return c.Publish(UserSubject(SubjectNotify, userID), data)
}

// PublishDirectMessage publishes a message or typing frame on dm.<userID>.
func (c *NATSClient) PublishDirectMessage(userID string, data []byte) error {
	return c.Publish(UserSubject(SubjectDirect, userID), data)
}

// PublishPresence announces that userID came online or went offline.
func (c *NATSClient) PublishPresence(userID string, online bool) error {
	state := "offline"
	if online {
		state = "online"
	}
	return c.Publish(UserSubject(SubjectPresence, userID), []byte(state))
}

// SubscribeUser subscribes to the notify and dm subjects of userID and
// passes every payload to handler. A second call for the same user replaces
// nothing and returns an error; callers track the first connection.
func (c *NATSClient) SubscribeUser(userID string, handler func(data []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[userID]; ok {
		return fmt.Errorf("nats: already subscribed for user %s", userID)
	}

	subs := make([]*nats.Subscription, 0, 2)
	for _, prefix := range []string{SubjectNotify, SubjectDirect} {
		subject := UserSubject(prefix, userID)
		sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
			handler(msg.Data)
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	c.subs[userID] = subs
	return nil
}

// UnsubscribeUser removes the subscriptions created by SubscribeUser.
func (c *NATSClient) UnsubscribeUser(userID string) error {
	c.mu.Lock()
	subs, ok := c.subs[userID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for user %s", userID)
	}
	delete(c.subs, userID)
	c.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("nats unsubscribe %s: %w", sub.Subject, err)
		}
	}
	return firstErr
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, subs := range c.subs {
		for _, sub := range subs {
			if err := sub.Drain(); err != nil {
				log.Printf("[nats] drain %s (user %s): %v", sub.Subject, userID, err)
			}
		}
	}
	c.subs = make(map[string][]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
