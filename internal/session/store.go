// Package session tracks issued login tokens and user presence in Redis.
//
// Every JWT carries a jti; the token is only honoured while its registry key
// exists, which is how logout revokes a token before it expires:
//
//	Key:   session:<jti>
//	Value: <user id>
//	TTL:   remaining token lifetime
//
// Presence is a per-user key refreshed by the push gateway heartbeat.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for token registry entries.
	SessionPrefix = "session:"

	// UserSessionsPrefix indexes a user's active jtis for logout-everywhere.
	UserSessionsPrefix = "user_sessions:"

	// PresencePrefix is the Redis key prefix for online markers.
	PresencePrefix = "presence:"

	// PresenceTTL is how long a user stays online without a heartbeat.
	PresenceTTL = 90 * time.Second
)

// Store manages token sessions and presence in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a session store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Register records a freshly issued token for ttl.
func (s *Store) Register(ctx context.Context, jti, userID string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SessionPrefix+jti, userID, ttl)
	pipe.SAdd(ctx, UserSessionsPrefix+userID, jti)
	pipe.Expire(ctx, UserSessionsPrefix+userID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: register: %w", err)
	}
	return nil
}

// Active reports whether the token is still registered to userID.
func (s *Store) Active(ctx context.Context, jti, userID string) (bool, error) {
	owner, err := s.client.Get(ctx, SessionPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: lookup: %w", err)
	}
	return owner == userID, nil
}

// Revoke removes a single token.
func (s *Store) Revoke(ctx context.Context, jti, userID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, SessionPrefix+jti)
	pipe.SRem(ctx, UserSessionsPrefix+userID, jti)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// RevokeAll removes every token issued to userID.
func (s *Store) RevokeAll(ctx context.Context, userID string) error {
	jtis, err := s.client.SMembers(ctx, UserSessionsPrefix+userID).Result()
	if err != nil {
		return fmt.Errorf("session: list user sessions: %w", err)
	}

	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, SessionPrefix+jti)
	}
	keys = append(keys, UserSessionsPrefix+userID)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("session: revoke all: %w", err)
	}
	return nil
}

// MarkOnline sets or refreshes the user's presence marker.
func (s *Store) MarkOnline(ctx context.Context, userID string) error {
	return s.client.Set(ctx, PresencePrefix+userID, time.Now().Unix(), PresenceTTL).Err()
}

// MarkOffline clears the user's presence marker.
func (s *Store) MarkOffline(ctx context.Context, userID string) error {
	return s.client.Del(ctx, PresencePrefix+userID).Err()
}

// IsOnline reports whether the user has a live presence marker.
func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, PresencePrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// OnlineAmong returns the subset of userIDs that are currently online.
func (s *Store) OnlineAmong(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, PresencePrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("session: presence lookup: %w", err)
	}
	for i, id := range userIDs {
		if cmds[i].Val() == 1 {
			out[id] = true
		}
	}
	return out, nil
}
