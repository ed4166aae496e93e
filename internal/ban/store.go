// Package ban suspends traveller accounts that collect abuse reports. State
// lives in Redis with TTL-based expiry:
//
//	suspended:<user id>  -> reason            TTL: suspension length
//	reporters:<user id>  -> set of reporters  TTL: ReportWindow
//	offenses:<user id>   -> suspension count  TTL: OffenseMemory
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	SuspendedPrefix = "suspended:"
	ReportersPrefix = "reporters:"
	OffensesPrefix  = "offenses:"

	// Escalating suspension lengths.
	SuspendFirst  = 24 * time.Hour
	SuspendSecond = 7 * 24 * time.Hour
	SuspendRepeat = 30 * 24 * time.Hour

	// ReportWindow is how long distinct reporters are remembered. The window
	// starts with the first report and does not slide.
	ReportWindow = 24 * time.Hour

	// OffenseMemory is how long past suspensions count towards escalation.
	OffenseMemory = 90 * 24 * time.Hour

	// AutoSuspendThreshold is the number of distinct reporters within
	// ReportWindow that suspends an account.
	AutoSuspendThreshold = 3

	// ReasonReports is recorded for suspensions triggered by reports.
	ReasonReports = "multiple_reports"
)

// Status describes an active suspension.
type Status struct {
	Suspended bool
	Remaining time.Duration
	Reason    string
}

// Store manages suspensions in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Check returns the user's suspension status. Redis errors are returned so
// callers can decide how to handle them; the API fails open.
func (s *Store) Check(ctx context.Context, userID string) (Status, error) {
	key := SuspendedPrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	st := Status{Suspended: true, Reason: reason}
	// A failed TTL read still reports the suspension.
	if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		st.Remaining = ttl
	}
	return st, nil
}

// Suspend blocks the account for duration.
func (s *Store) Suspend(ctx context.Context, userID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, SuspendedPrefix+userID, reason, duration).Err()
}

// escalationDuration returns the suspension length for the nth offense.
func escalationDuration(offense int) time.Duration {
	switch {
	case offense <= 1:
		return SuspendFirst
	case offense == 2:
		return SuspendSecond
	default:
		return SuspendRepeat
	}
}

// OffenseCount returns how many times the account has been suspended within
// OffenseMemory.
func (s *Store) OffenseCount(ctx context.Context, userID string) (int, error) {
	n, err := s.client.Get(ctx, OffensesPrefix+userID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Escalate records an offense and suspends the account for a length that
// grows with each offense:
//
//	1st offense  -> 24 hours
//	2nd offense  -> 7 days
//	3rd+ offense -> 30 days
//
// It returns the suspension length applied.
func (s *Store) Escalate(ctx context.Context, userID, reason string) (time.Duration, error) {
	key := OffensesPrefix + userID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ban: escalate incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffenseMemory).Err(); err != nil {
			return 0, fmt.Errorf("ban: escalate expire: %w", err)
		}
	}

	duration := escalationDuration(int(count))
	if err := s.Suspend(ctx, userID, duration, reason); err != nil {
		return 0, fmt.Errorf("ban: escalate suspend: %w", err)
	}
	return duration, nil
}

// ReportAndCheck records that reporterID reported userID and suspends the
// account once AutoSuspendThreshold distinct reporters have done so within
// ReportWindow. Repeat reports by the same reporter are not counted. Only the
// call whose new reporter brings the set to exactly AutoSuspendThreshold
// escalates, so concurrent reports cannot stack offenses. The reporter set is
// cleared when a suspension is applied so that the next suspension needs
// fresh reports.
func (s *Store) ReportAndCheck(ctx context.Context, userID, reporterID string) (bool, time.Duration, error) {
	key := ReportersPrefix + userID

	pipe := s.client.TxPipeline()
	added := pipe.SAdd(ctx, key, reporterID)
	size := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("ban: report add: %w", err)
	}

	if size.Val() == 1 && added.Val() == 1 {
		if err := s.client.Expire(ctx, key, ReportWindow).Err(); err != nil {
			return false, 0, fmt.Errorf("ban: report expire: %w", err)
		}
	}

	if added.Val() != 1 || size.Val() != AutoSuspendThreshold {
		return false, 0, nil
	}

	duration, err := s.Escalate(ctx, userID, ReasonReports)
	if err != nil {
		return false, 0, err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return true, duration, fmt.Errorf("ban: reset reporters: %w", err)
	}
	return true, duration, nil
}
