package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/profile"
)

// memProfiles is an in-memory ProfileStore.
type memProfiles struct {
	byID map[string]profile.UserProfile
}

func newMemProfiles(ps ...profile.UserProfile) *memProfiles {
	m := &memProfiles{byID: make(map[string]profile.UserProfile)}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memProfiles) GetProfile(_ context.Context, id string) (profile.UserProfile, error) {
	p, ok := m.byID[id]
	if !ok {
		return profile.UserProfile{}, fmt.Errorf("mem: %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

func (m *memProfiles) ListProfilesExcept(_ context.Context, id string) ([]profile.UserProfile, error) {
	var out []profile.UserProfile
	for pid, p := range m.byID {
		if pid != id {
			out = append(out, p)
		}
	}
	return out, nil
}

// memMatches is an in-memory MatchStore enforcing pair-key uniqueness.
type memMatches struct {
	mu      sync.Mutex
	byID    map[string]*MatchRecord
	byPair  map[string]string
	nextID  int
	creates int

	// hideNextFind makes the next FindByPair miss, simulating a concurrent
	// create that lands between lookup and insert.
	hideNextFind bool
}

func newMemMatches() *memMatches {
	return &memMatches{byID: make(map[string]*MatchRecord), byPair: make(map[string]string)}
}

func (m *memMatches) FindByPair(_ context.Context, a, b string) (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideNextFind {
		m.hideNextFind = false
		return nil, apperr.ErrNotFound
	}
	id, ok := m.byPair[PairKey(a, b)]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	rec := *m.byID[id]
	return &rec, nil
}

func (m *memMatches) Create(_ context.Context, rec *MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPair[rec.PairKey]; ok {
		return fmt.Errorf("mem: %w", apperr.ErrConflict)
	}
	m.nextID++
	m.creates++
	rec.ID = fmt.Sprintf("m%d", m.nextID)
	rec.CreatedAt = time.Unix(int64(m.nextID), 0)
	rec.UpdatedAt = rec.CreatedAt
	stored := *rec
	m.byID[rec.ID] = &stored
	m.byPair[rec.PairKey] = rec.ID
	return nil
}

func (m *memMatches) Get(_ context.Context, id string) (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memMatches) UpdateStatus(_ context.Context, id string, from, to Status) (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok || rec.Status != from {
		return nil, apperr.ErrConflict
	}
	rec.Status = to
	cp := *rec
	return &cp, nil
}

func (m *memMatches) ListByUser(_ context.Context, userID string, status Status) ([]MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MatchRecord
	for _, rec := range m.byID {
		if rec.Involves(userID) && (status == "" || rec.Status == status) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// brokenProfiles fails candidate listing while still serving single lookups.
type brokenProfiles struct {
	*memProfiles
	listErr error
}

func (b brokenProfiles) ListProfilesExcept(context.Context, string) ([]profile.UserProfile, error) {
	return nil, b.listErr
}

// brokenMatches fails every pair lookup with findErr.
type brokenMatches struct {
	*memMatches
	findErr error
}

func (b brokenMatches) FindByPair(context.Context, string, string) (*MatchRecord, error) {
	return nil, b.findErr
}

// ---------- Score tests ----------

func TestEngineScore(t *testing.T) {
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), newMemMatches())
	ctx := context.Background()

	if got := e.Score(ctx, "a", "b"); got != 63 {
		t.Errorf("Score(a, b) = %d, want 63", got)
	}
	if got := e.Score(ctx, "b", "a"); got != 63 {
		t.Errorf("Score(b, a) = %d, want 63", got)
	}
	if got := e.Score(ctx, "a", "a"); got != 0 {
		t.Errorf("Score(a, a) = %d, want 0", got)
	}
	if got := e.Score(ctx, "a", "ghost"); got != 0 {
		t.Errorf("Score(a, ghost) = %d, want 0", got)
	}
}

func TestEngineExplain(t *testing.T) {
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), newMemMatches())
	ctx := context.Background()

	c, err := e.Explain(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if c.TargetID != "b" || c.Score != 63 || len(c.Reasons) != 4 {
		t.Errorf("Explain = %+v, want target b score 63 with 4 reasons", c)
	}

	if _, err := e.Explain(ctx, "a", "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Explain(ghost) err = %v, want ErrNotFound", err)
	}
	if _, err := e.Explain(ctx, "a", "a"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("Explain(self) err = %v, want ErrInvalidInput", err)
	}
}

// ---------- Rank tests ----------

func rankPool() *memProfiles {
	req := profile.UserProfile{
		ID:           "req",
		Destinations: []string{"Japan", "Peru", "Chile"},
		TravelStyles: []profile.TravelStyle{"foodie"},
		Budget:       profile.BudgetModerate,
		Languages:    []string{"English"},
	}
	return newMemProfiles(
		req,
		profile.UserProfile{ID: "u1", Destinations: []string{"japan"}},                                               // 10
		profile.UserProfile{ID: "u2", Destinations: []string{"Japan", "Peru"}},                                       // 20
		profile.UserProfile{ID: "u3", Destinations: []string{"Japan", "Peru", "Chile"}, Budget: "moderate"},          // 50
		profile.UserProfile{ID: "u4", TravelStyles: []profile.TravelStyle{"foodie"}, Languages: []string{"English"}}, // 13
		profile.UserProfile{ID: "u5", Budget: profile.BudgetModerate},                                                // 20
		profile.UserProfile{ID: "zero1", Destinations: []string{"Mars"}},
		profile.UserProfile{ID: "zero2", Budget: profile.BudgetLuxury},
	)
}

func TestRank_OrdersByScoreThenID(t *testing.T) {
	e := NewEngine(rankPool(), newMemMatches(), WithWorkers(3))

	got, err := e.Rank(context.Background(), "req", 10)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	wantIDs := []string{"u3", "u2", "u5", "u4", "u1"}
	wantScores := []int{50, 20, 20, 13, 10}
	if len(got) != len(wantIDs) {
		t.Fatalf("Rank returned %d candidates, want %d: %+v", len(got), len(wantIDs), got)
	}
	for i := range wantIDs {
		if got[i].TargetID != wantIDs[i] || got[i].Score != wantScores[i] {
			t.Errorf("rank[%d] = %s/%d, want %s/%d", i, got[i].TargetID, got[i].Score, wantIDs[i], wantScores[i])
		}
	}
}

func TestRank_ExcludesSelfAndZeroScores(t *testing.T) {
	e := NewEngine(rankPool(), newMemMatches())

	got, err := e.Rank(context.Background(), "req", 50)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	for _, c := range got {
		if c.TargetID == "req" {
			t.Error("Rank returned the requester")
		}
		if c.Score == 0 {
			t.Errorf("Rank returned zero-score candidate %s", c.TargetID)
		}
		if c.Reasons == nil {
			t.Errorf("candidate %s has nil reasons", c.TargetID)
		}
	}
}

func TestRank_RespectsLimit(t *testing.T) {
	e := NewEngine(rankPool(), newMemMatches())

	got, err := e.Rank(context.Background(), "req", 2)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Rank returned %d candidates, want 2", len(got))
	}
	if got[0].TargetID != "u3" || got[1].TargetID != "u2" {
		t.Errorf("Rank top 2 = [%s %s], want [u3 u2]", got[0].TargetID, got[1].TargetID)
	}
}

func TestRank_IncompleteProfileReturnsEmpty(t *testing.T) {
	pool := rankPool()
	pool.byID["lonely"] = profile.UserProfile{ID: "lonely", Budget: profile.BudgetModerate, Languages: []string{"English"}}
	e := NewEngine(pool, newMemMatches())

	got, err := e.Rank(context.Background(), "lonely", 10)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Rank = %#v, want empty non-nil slice", got)
	}
}

func TestRank_Errors(t *testing.T) {
	e := NewEngine(rankPool(), newMemMatches())
	ctx := context.Background()

	if _, err := e.Rank(ctx, "ghost", 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Rank(ghost) err = %v, want ErrNotFound", err)
	}
	for _, limit := range []int{0, -3} {
		if _, err := e.Rank(ctx, "req", limit); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Rank(limit=%d) err = %v, want ErrInvalidInput", limit, err)
		}
	}
}

func TestRank_CancelledContext(t *testing.T) {
	e := NewEngine(rankPool(), newMemMatches())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Rank(ctx, "req", 10); !errors.Is(err, context.Canceled) {
		t.Errorf("Rank err = %v, want context.Canceled", err)
	}
}

func TestRank_Deterministic(t *testing.T) {
	e := NewEngine(rankPool(), newMemMatches(), WithWorkers(8))
	ctx := context.Background()

	first, err := e.Rank(ctx, "req", 10)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := e.Rank(ctx, "req", 10)
		if err != nil {
			t.Fatalf("Rank: %v", err)
		}
		for j := range first {
			if again[j].TargetID != first[j].TargetID {
				t.Fatalf("run %d: rank[%d] = %s, want %s", i, j, again[j].TargetID, first[j].TargetID)
			}
		}
	}
}

// ---------- GetOrCreateMatch tests ----------

func TestGetOrCreateMatch_CreatesPending(t *testing.T) {
	matches := newMemMatches()
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), matches)

	rec, created, err := e.GetOrCreateMatch(context.Background(), "a", "b", "trip-1")
	if err != nil {
		t.Fatalf("GetOrCreateMatch: %v", err)
	}
	if !created {
		t.Error("expected created = true")
	}
	if rec.Status != StatusPending || rec.Score != 63 || rec.TripID != "trip-1" {
		t.Errorf("record = %+v, want pending score 63 trip-1", rec)
	}
	if rec.UserID1 != "a" || rec.UserID2 != "b" {
		t.Errorf("record users = (%s, %s), want (a, b)", rec.UserID1, rec.UserID2)
	}
	if rec.PairKey != "a:b" {
		t.Errorf("PairKey = %q, want %q", rec.PairKey, "a:b")
	}
}

func TestGetOrCreateMatch_IdempotentAcrossOrderings(t *testing.T) {
	matches := newMemMatches()
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), matches)
	ctx := context.Background()

	first, _, err := e.GetOrCreateMatch(ctx, "a", "b", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, created, err := e.GetOrCreateMatch(ctx, "b", "a", "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if created {
		t.Error("second call created a new record")
	}
	if second.ID != first.ID {
		t.Errorf("second.ID = %s, want %s", second.ID, first.ID)
	}
	if matches.creates != 1 {
		t.Errorf("store saw %d creates, want 1", matches.creates)
	}
}

func TestGetOrCreateMatch_ConflictRefetches(t *testing.T) {
	matches := newMemMatches()
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), matches)
	ctx := context.Background()

	first, _, err := e.GetOrCreateMatch(ctx, "a", "b", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	matches.hideNextFind = true
	again, created, err := e.GetOrCreateMatch(ctx, "b", "a", "")
	if err != nil {
		t.Fatalf("after conflict: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("got (%s, created=%v), want existing %s", again.ID, created, first.ID)
	}
}

func TestGetOrCreateMatch_Concurrent(t *testing.T) {
	matches := newMemMatches()
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), matches)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := "a", "b"
			if i%2 == 1 {
				a, b = b, a
			}
			rec, _, err := e.GetOrCreateMatch(ctx, a, b, "")
			if err != nil {
				t.Errorf("goroutine %d: %v", i, err)
				return
			}
			ids[i] = rec.ID
		}()
	}
	wg.Wait()

	for i, id := range ids {
		if id != ids[0] {
			t.Errorf("goroutine %d got record %s, want %s", i, id, ids[0])
		}
	}
	if matches.creates != 1 {
		t.Errorf("store saw %d creates, want 1", matches.creates)
	}
}

func TestGetOrCreateMatch_Errors(t *testing.T) {
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), newMemMatches())
	ctx := context.Background()

	if _, _, err := e.GetOrCreateMatch(ctx, "a", "a", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("self pair err = %v, want ErrInvalidInput", err)
	}
	if _, _, err := e.GetOrCreateMatch(ctx, "a", "ghost", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing user err = %v, want ErrNotFound", err)
	}
}

func TestRank_ListFailurePropagates(t *testing.T) {
	listErr := errors.New("mongo: connection reset")
	e := NewEngine(brokenProfiles{memProfiles: rankPool(), listErr: listErr}, newMemMatches())

	got, err := e.Rank(context.Background(), "req", 10)
	if !errors.Is(err, listErr) {
		t.Fatalf("Rank err = %v, want wrapped %v", err, listErr)
	}
	if err == listErr {
		t.Error("Rank returned the store error unwrapped")
	}
	if got != nil {
		t.Errorf("Rank returned %d candidates alongside an error", len(got))
	}
}

func TestGetOrCreateMatch_LookupFailurePropagates(t *testing.T) {
	findErr := errors.New("mongo: server selection timeout")
	matches := newMemMatches()
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), brokenMatches{memMatches: matches, findErr: findErr})

	rec, created, err := e.GetOrCreateMatch(context.Background(), "a", "b", "")
	if !errors.Is(err, findErr) {
		t.Fatalf("GetOrCreateMatch err = %v, want wrapped %v", err, findErr)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		t.Error("lookup failure was treated as not-found")
	}
	if rec != nil || created {
		t.Errorf("got rec=%v created=%v, want nil/false", rec, created)
	}
	if matches.creates != 0 {
		t.Errorf("store saw %d creates after a failed lookup, want 0", matches.creates)
	}
}

// ---------- Transition tests ----------

func TestTransition(t *testing.T) {
	e := NewEngine(newMemProfiles(travellerA(), travellerB()), newMemMatches())
	ctx := context.Background()

	rec, _, err := e.GetOrCreateMatch(ctx, "a", "b", "")
	if err != nil {
		t.Fatalf("GetOrCreateMatch: %v", err)
	}

	if _, err := e.Transition(ctx, rec.ID, "mallory", StatusAccepted); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("outsider err = %v, want ErrForbidden", err)
	}
	if _, err := e.Transition(ctx, rec.ID, "b", StatusCompleted); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("pending->completed err = %v, want ErrInvalidInput", err)
	}

	updated, err := e.Transition(ctx, rec.ID, "b", StatusAccepted)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != StatusAccepted {
		t.Errorf("status = %s, want accepted", updated.Status)
	}

	if _, err := e.Transition(ctx, rec.ID, "a", StatusRejected); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("accepted->rejected err = %v, want ErrInvalidInput", err)
	}
	if _, err := e.Transition(ctx, rec.ID, "a", StatusCompleted); err != nil {
		t.Errorf("accepted->completed: %v", err)
	}
	if _, err := e.Transition(ctx, "nope", "a", StatusAccepted); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing match err = %v, want ErrNotFound", err)
	}
}

func TestListForUser(t *testing.T) {
	c := profile.UserProfile{ID: "c", Destinations: []string{"Peru"}}
	e := NewEngine(newMemProfiles(travellerA(), travellerB(), c), newMemMatches())
	ctx := context.Background()

	if _, _, err := e.GetOrCreateMatch(ctx, "a", "b", ""); err != nil {
		t.Fatal(err)
	}
	second, _, err := e.GetOrCreateMatch(ctx, "c", "a", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Transition(ctx, second.ID, "a", StatusRejected); err != nil {
		t.Fatal(err)
	}

	all, err := e.ListForUser(ctx, "a", "")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID {
		t.Errorf("ListForUser(a) = %+v, want 2 records newest first", all)
	}

	rejected, err := e.ListForUser(ctx, "a", StatusRejected)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(rejected) != 1 {
		t.Errorf("ListForUser(a, rejected) returned %d records, want 1", len(rejected))
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCompleted, false},
		{StatusAccepted, StatusCompleted, true},
		{StatusAccepted, StatusPending, false},
		{StatusRejected, StatusAccepted, false},
		{StatusCompleted, StatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPairKey(t *testing.T) {
	if PairKey("b", "a") != PairKey("a", "b") {
		t.Error("PairKey is not order independent")
	}
	if PairKey("a", "b") != "a:b" {
		t.Errorf("PairKey(a, b) = %q, want a:b", PairKey("a", "b"))
	}
}
