// Package moderation screens user-written text before it is stored or
// delivered. Direct messages get the full check (blocked terms plus spam
// patterns); profile bios and trip descriptions only get the term check.
package moderation

import (
	"strings"
	"unicode"
)

// Reasons reported in FilterResult.
const (
	ReasonBlockedKeyword = "blocked_keyword"
	ReasonSpamPattern    = "spam_pattern"
)

// FilterResult is the outcome of a check. Term names the matched blocklist
// entry or spam check; Detail is safe to show to the author.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string
	Detail  string
}

const blockedTermDetail = "Text contains language that is not allowed"

// defaultTerms covers harassment and the payment scams common on travel
// platforms.
var defaultTerms = []string{
	// harassment
	"kill yourself",
	"kys",
	"go die",
	"retard",
	"whore",
	"slut",
	"faggot",
	"nigger",
	"send nudes",
	// scams
	"western union",
	"moneygram",
	"free bitcoin",
	"crypto investment",
	"advance fee",
}

// leetMap folds common character substitutions back to letters.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// Filter matches text against a blocklist. It is immutable after creation and
// safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases []string
}

// NewFilter returns a filter loaded with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms returns a filter for the given terms. Single words match
// whole tokens; multi-word terms match whole-word phrases.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		fields := strings.Fields(strings.ToLower(term))
		switch len(fields) {
		case 0:
		case 1:
			f.words[fields[0]] = struct{}{}
		default:
			f.phrases = append(f.phrases, strings.Join(fields, " "))
		}
	}
	return f
}

// Check runs the blocklist and then the spam checks.
func (f *Filter) Check(text string) FilterResult {
	if r := f.CheckTerms(text); r.Blocked {
		return r
	}
	return f.checkSpamPatterns(text)
}

// CheckTerms runs only the blocklist.
func (f *Filter) CheckTerms(text string) FilterResult {
	if text == "" {
		return FilterResult{}
	}
	lower := strings.ToLower(text)

	plain := tokenizePlain(lower)
	if term, ok := f.matchWords(plain); ok {
		return FilterResult{Blocked: true, Reason: ReasonBlockedKeyword, Term: term, Detail: blockedTermDetail}
	}

	leet := tokenizeLeet(lower)
	for i, tok := range leet {
		leet[i] = normalizeLeet(tok)
	}
	if term, ok := f.matchWords(leet); ok {
		return FilterResult{Blocked: true, Reason: ReasonBlockedKeyword, Term: term, Detail: blockedTermDetail}
	}

	for _, tokens := range [][]string{plain, leet} {
		joined := " " + strings.Join(tokens, " ") + " "
		for _, phrase := range f.phrases {
			if strings.Contains(joined, " "+phrase+" ") {
				return FilterResult{Blocked: true, Reason: ReasonBlockedKeyword, Term: phrase, Detail: blockedTermDetail}
			}
		}
	}
	return FilterResult{}
}

// CheckList returns the items that pass CheckTerms, in order.
func (f *Filter) CheckList(items []string) []string {
	clean := make([]string, 0, len(items))
	for _, item := range items {
		if !f.CheckTerms(item).Blocked {
			clean = append(clean, item)
		}
	}
	return clean
}

func (f *Filter) matchWords(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return tok, true
		}
	}
	return "", false
}

// tokenizePlain splits on anything that is not a letter or digit.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet is like tokenizePlain but keeps leet substitution symbols
// inside tokens.
func tokenizeLeet(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		if _, ok := leetMap[r]; ok {
			return false
		}
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalizeLeet(token string) string {
	return strings.Map(func(r rune) rune {
		if sub, ok := leetMap[r]; ok {
			return sub
		}
		return r
	}, token)
}
