// Package matching implements the travel-companion compatibility engine:
// pairwise scoring of user profiles, human-readable reasons, top-K ranking of
// candidates and idempotent creation of match records.
//
// The engine holds no state of its own. Profiles and match records are read
// and written through the ProfileStore and MatchStore passed to NewEngine.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/profile"
)

// DefaultWorkers bounds the number of candidates scored concurrently by Rank.
const DefaultWorkers = 16

// ProfileStore is the read side of user storage the engine depends on.
type ProfileStore interface {
	// GetProfile returns the profile for id or an error wrapping
	// apperr.ErrNotFound.
	GetProfile(ctx context.Context, id string) (profile.UserProfile, error)
	// ListProfilesExcept returns every profile other than id, in any order.
	ListProfilesExcept(ctx context.Context, id string) ([]profile.UserProfile, error)
}

// MatchStore persists match records.
type MatchStore interface {
	// FindByPair returns the record for a and b in either field order, or an
	// error wrapping apperr.ErrNotFound.
	FindByPair(ctx context.Context, a, b string) (*MatchRecord, error)
	// Create assigns an ID and timestamps and stores rec. It returns an error
	// wrapping apperr.ErrConflict if the pair already exists.
	Create(ctx context.Context, rec *MatchRecord) error
	Get(ctx context.Context, id string) (*MatchRecord, error)
	// UpdateStatus moves a record from one status to another. It returns an
	// error wrapping apperr.ErrConflict if the stored status is no longer
	// from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*MatchRecord, error)
	// ListByUser returns the records userID participates in, newest first.
	// An empty status matches every status.
	ListByUser(ctx context.Context, userID string, status Status) ([]MatchRecord, error)
}

// Engine scores, ranks and records matches.
type Engine struct {
	profiles ProfileStore
	matches  MatchStore
	workers  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the fan-out bound used by Rank. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine creates an engine over the given stores.
func NewEngine(profiles ProfileStore, matches MatchStore, opts ...Option) *Engine {
	e := &Engine{
		profiles: profiles,
		matches:  matches,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score returns the compatibility score between users a and b. A self-pair
// or a profile that cannot be loaded yields 0 rather than an error.
func (e *Engine) Score(ctx context.Context, a, b string) int {
	if a == b {
		return 0
	}

	pa, err := e.profiles.GetProfile(ctx, a)
	if err != nil {
		logLookupFailure(a, err)
		return 0
	}
	pb, err := e.profiles.GetProfile(ctx, b)
	if err != nil {
		logLookupFailure(b, err)
		return 0
	}

	metrics.ScoresComputed.Inc()
	return ScoreProfiles(pa, pb)
}

// Explain returns the score and reasons for a pair. Unlike Score it reports
// missing profiles to the caller.
func (e *Engine) Explain(ctx context.Context, a, b string) (MatchCandidate, error) {
	if a == b {
		return MatchCandidate{}, apperr.Invalid("cannot match a user with themselves")
	}
	pa, err := e.profiles.GetProfile(ctx, a)
	if err != nil {
		return MatchCandidate{}, fmt.Errorf("matching: explain %s: %w", a, err)
	}
	pb, err := e.profiles.GetProfile(ctx, b)
	if err != nil {
		return MatchCandidate{}, fmt.Errorf("matching: explain %s: %w", b, err)
	}

	metrics.ScoresComputed.Inc()
	return MatchCandidate{
		TargetID: b,
		Score:    ScoreProfiles(pa, pb),
		Reasons:  Reasons(pa, pb),
	}, nil
}

// Rank returns up to limit candidates for requesterID ordered by score
// descending, ties broken by target ID ascending. Candidates scoring zero are
// never returned. A requester with no destinations gets an empty result.
func (e *Engine) Rank(ctx context.Context, requesterID string, limit int) ([]MatchCandidate, error) {
	if limit <= 0 {
		return nil, apperr.Invalid("limit must be a positive integer")
	}

	start := time.Now()
	defer func() { metrics.RankDuration.Observe(time.Since(start).Seconds()) }()

	requester, err := e.profiles.GetProfile(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("matching: rank %s: %w", requesterID, err)
	}
	if len(requester.Destinations) == 0 {
		return []MatchCandidate{}, nil
	}

	others, err := e.profiles.ListProfilesExcept(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("matching: rank list candidates: %w", err)
	}

	// Each worker writes only its own slot, so no locking is needed.
	scored := make([]MatchCandidate, len(others))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range others {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			other := others[i]
			if other.ID == requesterID {
				return nil
			}
			metrics.ScoresComputed.Inc()
			score := ScoreProfiles(requester, other)
			if score == 0 {
				return nil
			}
			scored[i] = MatchCandidate{
				TargetID: other.ID,
				Score:    score,
				Reasons:  Reasons(requester, other),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matching: rank %s: %w", requesterID, err)
	}

	candidates := make([]MatchCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Score > 0 {
			candidates = append(candidates, c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].TargetID < candidates[j].TargetID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// GetOrCreateMatch returns the existing record for the unordered pair (a, b)
// or scores the pair and stores a new pending record with a as initiator.
// created reports whether a new record was written. A concurrent create of
// the same pair is resolved by the store's uniqueness constraint, after
// which the winning record is returned.
func (e *Engine) GetOrCreateMatch(ctx context.Context, a, b, tripID string) (rec *MatchRecord, created bool, err error) {
	if a == "" || b == "" {
		return nil, false, apperr.Invalid("both user ids are required")
	}
	if a == b {
		return nil, false, apperr.Invalid("cannot match a user with themselves")
	}

	existing, err := e.matches.FindByPair(ctx, a, b)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, fmt.Errorf("matching: find pair: %w", err)
	}

	pa, err := e.profiles.GetProfile(ctx, a)
	if err != nil {
		return nil, false, fmt.Errorf("matching: create %s: %w", a, err)
	}
	pb, err := e.profiles.GetProfile(ctx, b)
	if err != nil {
		return nil, false, fmt.Errorf("matching: create %s: %w", b, err)
	}

	metrics.ScoresComputed.Inc()
	rec = &MatchRecord{
		UserID1: a,
		UserID2: b,
		TripID:  tripID,
		Status:  StatusPending,
		Score:   ScoreProfiles(pa, pb),
		Reason:  strings.Join(Reasons(pa, pb), "; "),
		PairKey: PairKey(a, b),
	}

	if err := e.matches.Create(ctx, rec); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, false, fmt.Errorf("matching: create: %w", err)
		}
		winner, ferr := e.matches.FindByPair(ctx, a, b)
		if ferr != nil {
			return nil, false, fmt.Errorf("matching: refetch after conflict: %w", ferr)
		}
		return winner, false, nil
	}

	metrics.MatchesCreated.Inc()
	log.Printf("[matching] created match=%s a=%s b=%s score=%d", rec.ID, a, b, rec.Score)
	return rec, true, nil
}

// Transition changes the status of a match on behalf of one of its
// participants.
func (e *Engine) Transition(ctx context.Context, matchID, actorID string, to Status) (*MatchRecord, error) {
	rec, err := e.matches.Get(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("matching: transition %s: %w", matchID, err)
	}
	if !rec.Involves(actorID) {
		return nil, apperr.Forbidden("only participants can update a match")
	}
	if !CanTransition(rec.Status, to) {
		return nil, apperr.Invalid(fmt.Sprintf("cannot move match from %s to %s", rec.Status, to))
	}

	updated, err := e.matches.UpdateStatus(ctx, matchID, rec.Status, to)
	if err != nil {
		return nil, fmt.Errorf("matching: transition %s: %w", matchID, err)
	}
	log.Printf("[matching] match=%s %s -> %s by %s", matchID, rec.Status, to, actorID)
	return updated, nil
}

// ListForUser returns the user's match records, newest first.
func (e *Engine) ListForUser(ctx context.Context, userID string, status Status) ([]MatchRecord, error) {
	recs, err := e.matches.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("matching: list %s: %w", userID, err)
	}
	return recs, nil
}

func logLookupFailure(id string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return
	}
	log.Printf("[matching] profile lookup %s failed: %v (scoring as 0)", id, err)
}
