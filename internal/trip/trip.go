// Package trip manages planned trips, companion join requests and the
// reviews travellers leave each other after travelling together.
package trip

import (
	"slices"
	"strings"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/profile"
)

// Status is the lifecycle stage of a trip.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

const (
	DefaultMaxCompanions = 1
	MaxCompanionsLimit   = 20
	MaxDescriptionChars  = 2000
	MinRating            = 1
	MaxRating            = 5
)

// Trip is a trip posted by its owner that other travellers can join.
type Trip struct {
	ID            string    `bson:"_id" json:"id"`
	OwnerID       string    `bson:"owner_id" json:"userId"`
	Destination   string    `bson:"destination" json:"destination"`
	StartDate     time.Time `bson:"start_date" json:"startDate"`
	EndDate       time.Time `bson:"end_date" json:"endDate"`
	Activities    []string  `bson:"activities" json:"activities"`
	Budget        string    `bson:"budget" json:"budget"`
	MaxCompanions int       `bson:"max_companions" json:"maxCompanions"`
	Companions    []string  `bson:"companions" json:"companions"`
	Description   string    `bson:"description" json:"description"`
	Status        Status    `bson:"status" json:"status"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updatedAt"`
}

// Participant reports whether userID owns or has joined the trip.
func (t *Trip) Participant(userID string) bool {
	return t.OwnerID == userID || slices.Contains(t.Companions, userID)
}

// Full reports whether no companion slots are left.
func (t *Trip) Full() bool {
	return len(t.Companions) >= t.MaxCompanions
}

// CreateRequest is the input for a new trip.
type CreateRequest struct {
	Destination   string    `json:"destination"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	Activities    []string  `json:"activities"`
	Budget        string    `json:"budget"`
	MaxCompanions int       `json:"maxCompanions"`
	Description   string    `json:"description"`
}

// build validates req and returns the trip it describes, with defaults
// applied. Moderation is the caller's job.
func (req CreateRequest) build(ownerID string) (*Trip, error) {
	dest := strings.TrimSpace(req.Destination)
	if dest == "" {
		return nil, apperr.Invalid("Destination is required")
	}
	if len([]rune(dest)) > profile.MaxEntryLength {
		return nil, apperr.Invalid("Destination is too long")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, apperr.Invalid("Start and end dates are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, apperr.Invalid("End date must not be before start date")
	}

	budget := profile.BudgetModerate
	if strings.TrimSpace(req.Budget) != "" {
		b, err := profile.ParseBudget(req.Budget)
		if err != nil {
			return nil, err
		}
		budget = b
	}

	maxCompanions := req.MaxCompanions
	if maxCompanions == 0 {
		maxCompanions = DefaultMaxCompanions
	}
	if maxCompanions < 1 || maxCompanions > MaxCompanionsLimit {
		return nil, apperr.Invalid("maxCompanions must be between 1 and 20")
	}

	if len([]rune(req.Description)) > MaxDescriptionChars {
		return nil, apperr.Invalid("Description is too long")
	}

	activities := profile.CleanList(req.Activities)
	if len(activities) > profile.MaxListEntries {
		return nil, apperr.Invalid("Too many activities")
	}

	return &Trip{
		OwnerID:       ownerID,
		Destination:   dest,
		StartDate:     req.StartDate.UTC(),
		EndDate:       req.EndDate.UTC(),
		Activities:    activities,
		Budget:        string(budget),
		MaxCompanions: maxCompanions,
		Companions:    []string{},
		Description:   strings.TrimSpace(req.Description),
		Status:        StatusPlanning,
	}, nil
}

// Review is one traveller's rating of another for a shared trip.
type Review struct {
	ID         string    `bson:"_id" json:"id"`
	TripID     string    `bson:"trip_id" json:"tripId"`
	ReviewerID string    `bson:"reviewer_id" json:"reviewerId"`
	RevieweeID string    `bson:"reviewee_id" json:"revieweeId"`
	Rating     int       `bson:"rating" json:"rating"`
	Comment    string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}

// ReviewRequest is the input for a review.
type ReviewRequest struct {
	RevieweeID string `json:"revieweeId"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

// ListFilter narrows List.
type ListFilter struct {
	Destination string // case-insensitive substring
	OwnerID     string
	Limit       int64
}
