package matching

import (
	"strings"

	"github.com/tripmate/companion/internal/profile"
)

// Factor weights. Every factor is capped before the total is summed.
const (
	destinationPoints = 10
	destinationCap    = 30

	stylePoints = 8
	styleCap    = 25

	budgetPoints = 20

	languagePoints = 5
	languageCap    = 15

	agePoints     = 10
	maxAgeSpread  = 10
	maxTotalScore = 100
)

// ScoreProfiles computes the compatibility score of two profiles in [0,100].
// It is a pure function of its inputs; a profile compared with itself (same
// ID) scores zero.
func ScoreProfiles(a, b profile.UserProfile) int {
	if a.ID == b.ID {
		return 0
	}

	score := 0
	score += min(destinationCap, len(sharedDestinations(a, b))*destinationPoints)
	score += min(styleCap, len(sharedStyles(a, b))*stylePoints)
	if sameBudget(a, b) {
		score += budgetPoints
	}
	score += min(languageCap, len(sharedLanguages(a, b))*languagePoints)
	if closeInAge(a, b) {
		score += agePoints
	}

	return min(score, maxTotalScore)
}

// Reasons explains a score in a fixed order: destinations, travel styles,
// budget, languages. Age proximity adds points but never a reason. The result
// is never nil.
func Reasons(a, b profile.UserProfile) []string {
	reasons := []string{}
	if a.ID == b.ID {
		return reasons
	}

	if d := sharedDestinations(a, b); len(d) > 0 {
		reasons = append(reasons, "Both interested in "+strings.Join(d, ", "))
	}
	if s := sharedStyles(a, b); len(s) > 0 {
		reasons = append(reasons, "Share "+strings.Join(profile.Strings(s), ", ")+" travel style")
	}
	if sameBudget(a, b) {
		reasons = append(reasons, "Same budget preference")
	}
	if l := sharedLanguages(a, b); len(l) > 0 {
		reasons = append(reasons, "Both speak "+strings.Join(l, ", "))
	}
	return reasons
}

// sharedDestinations returns the destinations of a that b also lists,
// compared case-insensitively. Entries keep a's spelling and order and
// appear at most once per lowercase key.
func sharedDestinations(a, b profile.UserProfile) []string {
	return intersect(a.Destinations, b.Destinations, strings.ToLower)
}

func sharedStyles(a, b profile.UserProfile) []profile.TravelStyle {
	return profile.Styles(intersect(profile.Strings(a.TravelStyles), profile.Strings(b.TravelStyles), nil))
}

func sharedLanguages(a, b profile.UserProfile) []string {
	return intersect(a.Languages, b.Languages, nil)
}

func sameBudget(a, b profile.UserProfile) bool {
	return a.Budget != "" && a.Budget == b.Budget
}

func closeInAge(a, b profile.UserProfile) bool {
	if a.Age == nil || b.Age == nil {
		return false
	}
	diff := *a.Age - *b.Age
	if diff < 0 {
		diff = -diff
	}
	return diff <= maxAgeSpread
}

// intersect returns the items of left that also occur in right, keyed by
// key (identity when nil). Order follows left and each key appears once.
func intersect(left, right []string, key func(string) string) []string {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	if key == nil {
		key = func(s string) string { return s }
	}

	inRight := make(map[string]struct{}, len(right))
	for _, r := range right {
		inRight[key(r)] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{}, len(left))
	for _, l := range left {
		k := key(l)
		if _, ok := inRight[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}
