package trip

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/moderation"
	"github.com/tripmate/companion/internal/notification"
	"github.com/tripmate/companion/internal/user"
)

// ---------- fakes ----------

type memStore struct {
	mu      sync.Mutex
	trips   map[string]*Trip
	order   []string
	reviews []Review
	seq     int
}

func newMemStore() *memStore { return &memStore{trips: map[string]*Trip{}} }

func (m *memStore) Create(_ context.Context, t *Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.ID = fmt.Sprintf("t%d", m.seq)
	t.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	cp := *t
	m.trips[t.ID] = &cp
	m.order = append(m.order, t.ID)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, apperr.NotFound("Trip not found")
	}
	cp := *t
	cp.Companions = slices.Clone(t.Companions)
	return &cp, nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Trip{}
	for i := len(m.order) - 1; i >= 0; i-- {
		t := m.trips[m.order[i]]
		if f.Destination != "" && !strings.Contains(strings.ToLower(t.Destination), strings.ToLower(f.Destination)) {
			continue
		}
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, *t)
		if int64(len(out)) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) AddCompanion(_ context.Context, tripID, userID string) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok || t.OwnerID == userID || slices.Contains(t.Companions, userID) || t.Full() || t.Status == StatusCompleted {
		return nil, fmt.Errorf("trip: join %s: %w", tripID, apperr.ErrConflict)
	}
	t.Companions = append(t.Companions, userID)
	cp := *t
	cp.Companions = slices.Clone(t.Companions)
	return &cp, nil
}

func (m *memStore) CreateReview(_ context.Context, r *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.TripID == r.TripID && existing.ReviewerID == r.ReviewerID && existing.RevieweeID == r.RevieweeID {
			return fmt.Errorf("trip: review: %w", apperr.ErrConflict)
		}
	}
	m.seq++
	r.ID = fmt.Sprintf("r%d", m.seq)
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *memStore) ListReviews(_ context.Context, tripID string) ([]Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Review{}
	for _, r := range m.reviews {
		if r.TripID == tripID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memUsers struct {
	mu      sync.Mutex
	users   map[string]*user.User
	ratings map[string][]int
}

func newMemUsers(names ...string) *memUsers {
	m := &memUsers{users: map[string]*user.User{}, ratings: map[string][]int{}}
	for _, n := range names {
		m.users[strings.ToLower(n)] = &user.User{ID: strings.ToLower(n), Name: n}
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("User not found")
}

func (m *memUsers) ApplyRating(_ context.Context, id string, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[id] = append(m.ratings[id], rating)
	return nil
}

type notice struct {
	userID, title, description string
	kind                       notification.Type
}

type memNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *memNotifier) Notify(_ context.Context, userID string, kind notification.Type, title, description, _ string) (*notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{userID: userID, kind: kind, title: title, description: description})
	return &notification.Notification{}, nil
}

func (n *memNotifier) of(kind notification.Type) []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notice
	for _, x := range n.notices {
		if x.kind == kind {
			out = append(out, x)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *memStore
	users    *memUsers
	notifier *memNotifier
}

func newFixture() fixture {
	f := fixture{store: newMemStore(), users: newMemUsers("Olga", "Sam", "Kai", "Lee"), notifier: &memNotifier{}}
	f.svc = NewService(f.store, f.users, moderation.NewFilter(), f.notifier)
	return f
}

var (
	may1  = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	may14 = time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC)
)

func peruTrip() CreateRequest {
	return CreateRequest{Destination: "Peru", StartDate: may1, EndDate: may14, Activities: []string{"hiking", " hiking ", ""}}
}

// ---------- Create ----------

func TestCreate_Defaults(t *testing.T) {
	f := newFixture()

	trip, err := f.svc.Create(context.Background(), "olga", peruTrip())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if trip.ID == "" || trip.OwnerID != "olga" {
		t.Errorf("trip = %+v", trip)
	}
	if trip.Budget != "moderate" || trip.MaxCompanions != 1 || trip.Status != StatusPlanning {
		t.Errorf("defaults not applied: budget=%q max=%d status=%q", trip.Budget, trip.MaxCompanions, trip.Status)
	}
	if trip.Companions == nil || len(trip.Companions) != 0 {
		t.Errorf("companions = %#v, want empty slice", trip.Companions)
	}
	if !slices.Equal(trip.Activities, []string{"hiking"}) {
		t.Errorf("activities = %q", trip.Activities)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"no destination", func(r *CreateRequest) { r.Destination = "  " }},
		{"no start", func(r *CreateRequest) { r.StartDate = time.Time{} }},
		{"no end", func(r *CreateRequest) { r.EndDate = time.Time{} }},
		{"end before start", func(r *CreateRequest) { r.EndDate = may1.Add(-time.Hour) }},
		{"unknown budget", func(r *CreateRequest) { r.Budget = "platinum" }},
		{"too many companions", func(r *CreateRequest) { r.MaxCompanions = MaxCompanionsLimit + 1 }},
		{"negative companions", func(r *CreateRequest) { r.MaxCompanions = -1 }},
		{"long description", func(r *CreateRequest) { r.Description = strings.Repeat("x", MaxDescriptionChars+1) }},
		{"blocked description", func(r *CreateRequest) { r.Description = "pay the deposit via western union" }},
		{"blocked activity", func(r *CreateRequest) { r.Activities = []string{"send nudes"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := peruTrip()
			tt.mutate(&req)
			if _, err := f.svc.Create(ctx, "olga", req); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("Create err = %v, want ErrInvalidInput", err)
			}
		})
	}
	if len(f.store.trips) != 0 {
		t.Errorf("invalid requests stored %d trips", len(f.store.trips))
	}
}

func TestCreate_SameDayAndBudgetAlias(t *testing.T) {
	f := newFixture()
	req := peruTrip()
	req.EndDate = req.StartDate
	req.Budget = "budget"
	req.MaxCompanions = 3

	trip, err := f.svc.Create(context.Background(), "olga", req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if trip.Budget != "economy" || trip.MaxCompanions != 3 {
		t.Errorf("trip = %+v", trip)
	}
}

// ---------- List / Get ----------

func TestList_NewestFirstWithDestinationFilter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, dest := range []string{"Peru", "Japan", "Southern Peru"} {
		req := peruTrip()
		req.Destination = dest
		if _, err := f.svc.Create(ctx, "olga", req); err != nil {
			t.Fatal(err)
		}
	}

	all, err := f.svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Destination != "Southern Peru" || all[2].Destination != "Peru" {
		t.Errorf("List = %v", all)
	}

	peru, err := f.svc.List(ctx, ListFilter{Destination: " peru "})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(peru) != 2 {
		t.Errorf("filtered list has %d trips, want 2", len(peru))
	}

	if _, err := f.svc.Get(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

// ---------- RequestJoin ----------

func TestRequestJoin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	trip, err := f.svc.Create(ctx, "olga", peruTrip())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.RequestJoin(ctx, trip.ID, "olga"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("owner join = %v, want ErrInvalidInput", err)
	}

	joined, err := f.svc.RequestJoin(ctx, trip.ID, "sam")
	if err != nil {
		t.Fatalf("RequestJoin: %v", err)
	}
	if !slices.Equal(joined.Companions, []string{"sam"}) {
		t.Errorf("companions = %v", joined.Companions)
	}

	if _, err := f.svc.RequestJoin(ctx, trip.ID, "sam"); !errors.Is(err, apperr.ErrConflict) || apperr.Message(err) != "Already requested or joined" {
		t.Errorf("second join = %v, want already joined conflict", err)
	}
	if _, err := f.svc.RequestJoin(ctx, trip.ID, "kai"); !errors.Is(err, apperr.ErrConflict) || apperr.Message(err) != "Trip is full" {
		t.Errorf("join full trip = %v, want full conflict", err)
	}
	if _, err := f.svc.RequestJoin(ctx, "missing", "kai"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("join missing trip = %v, want ErrNotFound", err)
	}

	requests := f.notifier.of(notification.TypeTripRequest)
	if len(requests) != 1 {
		t.Fatalf("trip_request notices = %d, want 1", len(requests))
	}
	if requests[0].userID != "olga" || requests[0].title != "Sam wants to join your trip" ||
		requests[0].description != "They're interested in your Peru trip starting May 1, 2026" {
		t.Errorf("notice = %+v", requests[0])
	}
	if approved := f.notifier.of(notification.TypeTripApproved); len(approved) != 1 || approved[0].userID != "sam" {
		t.Errorf("trip_approved notices = %+v", approved)
	}
}

func TestRequestJoin_ConcurrentLastSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := peruTrip()
	req.MaxCompanions = 2
	trip, err := f.svc.Create(ctx, "olga", req)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for _, id := range []string{"sam", "kai", "lee"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.RequestJoin(ctx, trip.ID, id); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrConflict) {
				t.Errorf("join %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	got, _ := f.svc.Get(ctx, trip.ID)
	if ok != 2 || len(got.Companions) != 2 {
		t.Errorf("joined=%d companions=%v, want exactly 2", ok, got.Companions)
	}
}

// ---------- Review ----------

func TestReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := peruTrip()
	req.MaxCompanions = 2
	trip, err := f.svc.Create(ctx, "olga", req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RequestJoin(ctx, trip.ID, "sam"); err != nil {
		t.Fatal(err)
	}

	r, err := f.svc.Review(ctx, trip.ID, "sam", ReviewRequest{RevieweeID: "olga", Rating: 5, Comment: "Great planner"})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if r.ID == "" || r.ReviewerID != "sam" || r.RevieweeID != "olga" {
		t.Errorf("review = %+v", r)
	}
	if !slices.Equal(f.users.ratings["olga"], []int{5}) {
		t.Errorf("ratings = %v", f.users.ratings["olga"])
	}
	reviews := f.notifier.of(notification.TypeReview)
	if len(reviews) != 1 || reviews[0].userID != "olga" || reviews[0].title != "Sam left you a review" || reviews[0].description != "5/5 for your Peru trip" {
		t.Errorf("review notices = %+v", reviews)
	}

	tests := []struct {
		name     string
		reviewer string
		req      ReviewRequest
		want     error
	}{
		{"rating too low", "sam", ReviewRequest{RevieweeID: "olga", Rating: 0}, apperr.ErrInvalidInput},
		{"rating too high", "sam", ReviewRequest{RevieweeID: "olga", Rating: 6}, apperr.ErrInvalidInput},
		{"self review", "sam", ReviewRequest{RevieweeID: "sam", Rating: 4}, apperr.ErrInvalidInput},
		{"outsider reviewer", "kai", ReviewRequest{RevieweeID: "olga", Rating: 4}, apperr.ErrForbidden},
		{"outsider reviewee", "olga", ReviewRequest{RevieweeID: "kai", Rating: 4}, apperr.ErrInvalidInput},
		{"duplicate", "sam", ReviewRequest{RevieweeID: "olga", Rating: 3}, apperr.ErrConflict},
		{"blocked comment", "olga", ReviewRequest{RevieweeID: "sam", Rating: 1, Comment: "kys"}, apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Review(ctx, trip.ID, tt.reviewer, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Review err = %v, want %v", err, tt.want)
			}
		})
	}

	if len(f.users.ratings["olga"]) != 1 {
		t.Errorf("rejected reviews changed ratings: %v", f.users.ratings["olga"])
	}

	list, err := f.svc.ListReviews(ctx, trip.ID)
	if err != nil || len(list) != 1 {
		t.Errorf("ListReviews = (%v, %v), want one review", list, err)
	}
}
