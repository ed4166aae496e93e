package moderation

import "testing"

func checkSpamCases(t *testing.T, tests []struct {
	name    string
	input   string
	blocked bool
	term    string
}) {
	t.Helper()
	f := NewFilterWithTerms(nil) // no blocklist, isolate spam checks

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
			if tt.blocked && result.Reason != ReasonSpamPattern {
				t.Errorf("Check(%q).Reason = %q, want %q", tt.input, result.Reason, ReasonSpamPattern)
			}
		})
	}
}

func TestSpam_URLs(t *testing.T) {
	checkSpamCases(t, []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"http url", "check out http://cheap-flights.com", true, "url"},
		{"https url", "book here https://deal.xyz/click", true, "url"},
		{"www url", "go to www.phishing.net", true, "url"},
		{"bare domain with path", "visit tickets.top/free", true, "url"},
		{"version string", "app v2.0 works", false, ""},
		{"price", "it was 3.14 each", false, ""},
		{"bare domain without path", "I booked on example.com", false, ""},
	})
}

func TestSpam_PaymentHandles(t *testing.T) {
	checkSpamCases(t, []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"cashapp", "deposit to cashapp $trip4you", true, "payment_handle"},
		{"cash app spaced", "Cash App: $hostelking", true, "payment_handle"},
		{"venmo", "venmo @someone first", true, "payment_handle"},
		{"paypal me", "paypal.me/guide", true, "payment_handle"},
		{"mention without handle", "I use venmo for splitting", false, ""},
	})
}

func TestSpam_Flooding(t *testing.T) {
	checkSpamCases(t, []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"char flood", "heyyyyyyyyyy", true, "char_flood"},
		{"some repetition", "sooo excited", false, ""},
		{"word flood", "go go go go", true, "word_flood"},
		{"word flood mixed case", "Hi hi HI hi", true, "word_flood"},
		{"three repeats", "go go go", false, ""},
	})
}

func TestHasCharFlood(t *testing.T) {
	if hasCharFlood("aaaaaaa") {
		t.Error("7 repeats flagged as flood")
	}
	if !hasCharFlood("aaaaaaaa") {
		t.Error("8 repeats not flagged")
	}
	if hasCharFlood("") {
		t.Error("empty string flagged")
	}
}
