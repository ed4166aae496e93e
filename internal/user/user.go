// Package user stores traveller accounts and their profiles in MongoDB. The
// store also serves as the profile source for the match engine.
package user

import (
	"strings"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/profile"
)

// validGenders is the set of accepted gender values.
var validGenders = map[string]bool{
	"":                  true,
	"male":              true,
	"female":            true,
	"other":             true,
	"prefer-not-to-say": true,
}

// User is the account document.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	Name         string    `bson:"name" json:"name"`
	Age          *int      `bson:"age,omitempty" json:"age,omitempty"`
	Gender       string    `bson:"gender,omitempty" json:"gender,omitempty"`
	TravelStyle  []string  `bson:"travel_style" json:"travelStyle"`
	Destinations []string  `bson:"destinations" json:"destinations"`
	Budget       string    `bson:"budget,omitempty" json:"budget,omitempty"`
	Languages    []string  `bson:"languages" json:"languages"`
	Bio          string    `bson:"bio,omitempty" json:"bio,omitempty"`
	Rating       float64   `bson:"rating" json:"rating"`
	ReviewCount  int       `bson:"review_count" json:"reviewCount"`
	Verified     bool      `bson:"verified" json:"verified"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

// Public is the view of a user other travellers may see.
type Public struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Age          *int     `json:"age,omitempty"`
	Gender       string   `json:"gender,omitempty"`
	TravelStyle  []string `json:"travelStyle"`
	Destinations []string `json:"destinations"`
	Budget       string   `json:"budget,omitempty"`
	Languages    []string `json:"languages"`
	Bio          string   `json:"bio,omitempty"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"reviewCount"`
	Verified     bool     `json:"verified"`
}

// Public strips private fields.
func (u *User) Public() Public {
	return Public{
		ID:           u.ID,
		Name:         u.Name,
		Age:          u.Age,
		Gender:       u.Gender,
		TravelStyle:  nonNil(u.TravelStyle),
		Destinations: nonNil(u.Destinations),
		Budget:       u.Budget,
		Languages:    nonNil(u.Languages),
		Bio:          u.Bio,
		Rating:       u.Rating,
		ReviewCount:  u.ReviewCount,
		Verified:     u.Verified,
	}
}

// Profile converts the stored document to the match engine's view.
func (u *User) Profile() profile.UserProfile {
	// Stored budgets were validated on write; an unknown legacy value is
	// treated as undeclared.
	budget, _ := profile.ParseBudget(u.Budget)
	return profile.UserProfile{
		ID:           u.ID,
		Destinations: nonNil(u.Destinations),
		TravelStyles: profile.Styles(u.TravelStyle),
		Budget:       budget,
		Languages:    nonNil(u.Languages),
		Age:          u.Age,
	}
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Name         *string   `json:"name"`
	Age          *int      `json:"age"`
	Gender       *string   `json:"gender"`
	TravelStyle  *[]string `json:"travelStyle"`
	Destinations *[]string `json:"destinations"`
	Budget       *string   `json:"budget"`
	Languages    *[]string `json:"languages"`
	Bio          *string   `json:"bio"`
}

// MaxBioChars bounds the free-text bio.
const MaxBioChars = 500

// Apply merges the update into u, normalising and validating the resulting
// profile. u is left untouched when an error is returned.
func (p ProfileUpdate) Apply(u *User) error {
	next := *u
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return apperr.Invalid("name cannot be empty")
		}
		next.Name = name
	}
	if p.Age != nil {
		age := *p.Age
		next.Age = &age
	}
	if p.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*p.Gender))
		if !validGenders[g] {
			return apperr.Invalid("gender must be male, female or other")
		}
		next.Gender = g
	}
	if p.TravelStyle != nil {
		next.TravelStyle = *p.TravelStyle
	}
	if p.Destinations != nil {
		next.Destinations = *p.Destinations
	}
	if p.Languages != nil {
		next.Languages = *p.Languages
	}
	if p.Bio != nil {
		bio := strings.TrimSpace(*p.Bio)
		if len([]rune(bio)) > MaxBioChars {
			return apperr.Invalid("bio is too long")
		}
		next.Bio = bio
	}

	budget := next.Budget
	if p.Budget != nil {
		budget = *p.Budget
	}
	tier, err := profile.ParseBudget(budget)
	if err != nil {
		return err
	}

	prof := profile.Normalize(profile.UserProfile{
		ID:           next.ID,
		Destinations: next.Destinations,
		TravelStyles: profile.Styles(next.TravelStyle),
		Budget:       tier,
		Languages:    next.Languages,
		Age:          next.Age,
	})
	if err := profile.Validate(prof); err != nil {
		return err
	}

	next.Destinations = prof.Destinations
	next.TravelStyle = profile.Strings(prof.TravelStyles)
	next.Languages = prof.Languages
	next.Budget = string(prof.Budget)
	*u = next
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
