package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// urlPattern matches http/https links, www. hosts and bare domains on
	// TLDs favoured by scam pages. The bare-domain form needs a trailing "/"
	// so flight numbers and prices like "3.14" pass.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf|top|click)/\S*)`)

	// payHandlePattern matches payment app handles pushed by advance-fee
	// scammers, e.g. "cashapp $trip4you" or "venmo @someone".
	payHandlePattern = regexp.MustCompile(`(?i)(\b(cash\s?app|venmo|zelle)\b\W*[$@]\w{3,}|paypal\.me/\w+)`)
)

// spamCheck pairs a detection function with metadata used for reporting.
type spamCheck struct {
	name   string
	reason string
	match  func(string) bool
}

// spamChecks run in order; the first match wins.
var spamChecks = []spamCheck{
	{name: "url", reason: "Links are not allowed in messages", match: func(text string) bool {
		return urlPattern.MatchString(text)
	}},
	{name: "payment_handle", reason: "Payment handles are not allowed in messages", match: func(text string) bool {
		return payHandlePattern.MatchString(text)
	}},
	{name: "char_flood", reason: "Character flooding detected", match: hasCharFlood},
	{name: "word_flood", reason: "Repeated word flooding detected", match: hasWordFlood},
}

// hasCharFlood reports whether text repeats one character 8 or more times in
// a row. RE2 has no backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 8

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports whether one word appears 4 or more times in a row,
// ignoring case.
func hasWordFlood(text string) bool {
	const threshold = 4

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}

// checkSpamPatterns returns a blocking result for the first spam check that
// matches text.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{
				Blocked: true,
				Reason:  ReasonSpamPattern,
				Term:    sc.name,
				Detail:  sc.reason,
			}
		}
	}
	return FilterResult{}
}
