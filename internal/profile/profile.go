// Package profile defines the travel profile that the match engine compares.
// Profiles are validated and normalised when they are written to storage; the
// engine itself only ever reads them.
package profile

import (
	"fmt"
	"strings"

	"github.com/tripmate/companion/internal/apperr"
)

// BudgetTier is the spending level a traveller declares.
type BudgetTier string

const (
	BudgetEconomy  BudgetTier = "economy"
	BudgetModerate BudgetTier = "moderate"
	BudgetLuxury   BudgetTier = "luxury"
)

// TravelStyle is one tag from the fixed travel-style vocabulary.
type TravelStyle string

// validStyles is the closed set of travel-style tags.
var validStyles = map[TravelStyle]bool{
	"adventurous": true,
	"adventure":   true,
	"luxury":      true,
	"budget":      true,
	"cultural":    true,
	"nature":      true,
	"solo":        true,
	"family":      true,
	"romantic":    true,
	"foodie":      true,
	"relaxation":  true,
	"backpacking": true,
}

const (
	MinAge         = 18
	MaxAge         = 120
	MaxListEntries = 50
	MaxEntryLength = 100
)

// UserProfile is the read-only view of a user that compatibility scoring uses.
type UserProfile struct {
	ID           string
	Destinations []string
	TravelStyles []TravelStyle
	Budget       BudgetTier
	Languages    []string
	Age          *int
}

// ParseBudget converts a stored or submitted budget value to a tier. The
// empty string means "not declared". "budget" is accepted as a legacy alias
// of economy.
func ParseBudget(s string) (BudgetTier, error) {
	switch BudgetTier(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case BudgetEconomy, "budget":
		return BudgetEconomy, nil
	case BudgetModerate:
		return BudgetModerate, nil
	case BudgetLuxury:
		return BudgetLuxury, nil
	}
	return "", apperr.Invalid(fmt.Sprintf("unknown budget tier %q", s))
}

// IsValidStyle reports whether s belongs to the travel-style vocabulary.
func IsValidStyle(s TravelStyle) bool {
	return validStyles[s]
}

// Styles converts raw tags to TravelStyle values without validating them.
func Styles(tags []string) []TravelStyle {
	out := make([]TravelStyle, 0, len(tags))
	for _, t := range tags {
		out = append(out, TravelStyle(t))
	}
	return out
}

// Strings is the inverse of Styles.
func Strings(styles []TravelStyle) []string {
	out := make([]string, 0, len(styles))
	for _, s := range styles {
		out = append(out, string(s))
	}
	return out
}

// Normalize trims every entry, drops empty ones and removes exact duplicates
// while keeping first-seen order.
func Normalize(p UserProfile) UserProfile {
	p.Destinations = CleanList(p.Destinations)
	p.Languages = CleanList(p.Languages)
	p.TravelStyles = Styles(CleanList(Strings(p.TravelStyles)))
	p.Budget = BudgetTier(strings.TrimSpace(string(p.Budget)))
	return p
}

// Validate checks a normalised profile against the storage rules.
func Validate(p UserProfile) error {
	switch p.Budget {
	case "", BudgetEconomy, BudgetModerate, BudgetLuxury:
	default:
		return apperr.Invalid(fmt.Sprintf("unknown budget tier %q", p.Budget))
	}

	for _, s := range p.TravelStyles {
		if !IsValidStyle(s) {
			return apperr.Invalid(fmt.Sprintf("unknown travel style %q", s))
		}
	}

	if p.Age != nil && (*p.Age < MinAge || *p.Age > MaxAge) {
		return apperr.Invalid(fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge))
	}

	lists := []struct {
		name  string
		items []string
	}{
		{"destinations", p.Destinations},
		{"travel styles", Strings(p.TravelStyles)},
		{"languages", p.Languages},
	}
	for _, l := range lists {
		if len(l.items) > MaxListEntries {
			return apperr.Invalid(fmt.Sprintf("too many %s (max %d)", l.name, MaxListEntries))
		}
		for _, item := range l.items {
			if len([]rune(item)) > MaxEntryLength {
				return apperr.Invalid(fmt.Sprintf("%s entries must be at most %d characters", l.name, MaxEntryLength))
			}
		}
	}
	return nil
}

// CleanList trims entries, drops empty ones and removes exact duplicates,
// keeping first-seen order. The result is never nil.
func CleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
