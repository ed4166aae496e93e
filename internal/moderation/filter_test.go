package moderation

import (
	"strings"
	"testing"
)

func TestNewFilter(t *testing.T) {
	f := NewFilter()
	if f == nil {
		t.Fatal("NewFilter returned nil")
	}
	if len(f.words) == 0 || len(f.phrases) == 0 {
		t.Fatal("NewFilter created an incomplete filter")
	}
}

func TestCheck_BlockedSingleWord(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BADWORD", true, "badword"},
		{"with punctuation", "hello, badword!", true, "badword"},
		{"clean message", "see you in Lisbon", false, ""},
		{"longer word", "badwording is fine", false, ""},
		{"substring", "mybadword", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
			if tt.blocked && (result.Reason != ReasonBlockedKeyword || result.Detail == "") {
				t.Errorf("Check(%q) = %+v, want blocked_keyword with detail", tt.input, result)
			}
		})
	}
}

func TestCheck_BlockedPhrase(t *testing.T) {
	f := NewFilterWithTerms([]string{"kill yourself", "western  union"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact phrase", "kill yourself", true, "kill yourself"},
		{"phrase in sentence", "you should kill yourself now", true, "kill yourself"},
		{"case insensitive", "KILL YOURSELF", true, "kill yourself"},
		{"extra spacing in term", "pay by Western Union please", true, "western union"},
		{"punctuation between words", "western-union only", true, "western union"},
		{"different word form", "kill yourselves", false, ""},
		{"words separated", "kill and yourself", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
		})
	}
}

func TestCheck_Leetspeak(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	for _, input := range []string{"b@dw0rd", "off3n$ive", "offens1ve", "offens!ve", "0ff3n$!v3"} {
		if !f.Check(input).Blocked {
			t.Errorf("Check(%q) was not blocked", input)
		}
	}
}

func TestCheck_CleanTravelChat(t *testing.T) {
	f := NewFilter()

	messages := []string{
		"hey! are you still going to Peru in May?",
		"my flight is BA2490, lands at 14:30",
		"hostel is 25 euros a night, split two ways?",
		"I can send you the itinerary tonight",
		"let's meet at the station at 9",
		"I use venmo for splitting costs",
		"",
	}

	for _, msg := range messages {
		if result := f.Check(msg); result.Blocked {
			t.Errorf("Check(%q) was blocked (%s/%s), expected clean", msg, result.Reason, result.Term)
		}
	}
}

func TestCheck_DefaultBlocklist(t *testing.T) {
	f := NewFilter()

	for _, msg := range []string{"kill yourself", "send nudes", "pay me via western union", "free bitcoin here"} {
		if !f.Check(msg).Blocked {
			t.Errorf("Check(%q) was not blocked", msg)
		}
	}

	// Spaced-out letters are separate tokens.
	if f.Check("k y s").Blocked {
		t.Error("Check(\"k y s\") was blocked")
	}
}

func TestCheckTermsSkipsSpam(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	if f.CheckTerms("see https://example.com/route").Blocked {
		t.Error("CheckTerms blocked a link")
	}
	if !f.Check("see https://example.com/route").Blocked {
		t.Error("Check did not block a link")
	}
}

func TestCheckList(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "kill yourself"})

	clean := f.CheckList([]string{"Japan", "badword", "Peru", "kill yourself island"})
	want := []string{"Japan", "Peru"}
	if strings.Join(clean, ",") != strings.Join(want, ",") {
		t.Errorf("CheckList = %v, want %v", clean, want)
	}

	if got := f.CheckList(nil); got == nil || len(got) != 0 {
		t.Errorf("CheckList(nil) = %#v, want empty slice", got)
	}
}

func TestNewFilterWithTerms_EmptyAndWhitespace(t *testing.T) {
	f := NewFilterWithTerms([]string{"", "  ", "Valid"})

	if _, ok := f.words["valid"]; !ok {
		t.Error("expected 'valid' in words set")
	}
	if len(f.words) != 1 || len(f.phrases) != 0 {
		t.Errorf("expected 1 word and no phrases, got %d/%d", len(f.words), len(f.phrases))
	}
}

func TestNormalizeLeet(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"h3ll0", "hello"},
		{"$h!t", "shit"},
		{"ch@ng3", "change"},
		{"7r4v3l", "travel"},
	}

	for _, tt := range tests {
		if got := normalizeLeet(tt.input); got != tt.want {
			t.Errorf("normalizeLeet(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		plain []string
		leet  []string
	}{
		{"hello world", []string{"hello", "world"}, []string{"hello", "world"}},
		{"hello, world!", []string{"hello", "world"}, []string{"hello", "world!"}},
		{"  spaced  out  ", []string{"spaced", "out"}, []string{"spaced", "out"}},
		{"b@dw0rd", []string{"b", "dw0rd"}, []string{"b@dw0rd"}},
		{"", nil, nil},
	}

	for _, tt := range tests {
		if got := tokenizePlain(tt.input); strings.Join(got, "|") != strings.Join(tt.plain, "|") {
			t.Errorf("tokenizePlain(%q) = %v, want %v", tt.input, got, tt.plain)
		}
		if got := tokenizeLeet(tt.input); strings.Join(got, "|") != strings.Join(tt.leet, "|") {
			t.Errorf("tokenizeLeet(%q) = %v, want %v", tt.input, got, tt.leet)
		}
	}
}

// BenchmarkCheck measures filter cost for a typical direct message.
func BenchmarkCheck(b *testing.B) {
	f := NewFilter()
	msg := "hey, are you still up for the Inca trail in May? I found a hostel in Cusco for the first two nights."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}

// BenchmarkCheck_LongMessage measures filter cost at the message size limit.
func BenchmarkCheck_LongMessage(b *testing.B) {
	f := NewFilter()
	msg := strings.Repeat("this is a perfectly normal message about our trip. ", 38)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}
