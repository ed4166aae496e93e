package message

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tripmate/companion/internal/apperr"
)

const (
	MaxMessageBytes = 8192 // hard cap before counting runes
	MaxTextChars    = 2000 // max character count
	PreviewChars    = 100  // notification preview length
)

// ValidateContent checks that a direct message meets content requirements.
func ValidateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Invalid("Message content is required")
	}
	if len(text) > MaxMessageBytes {
		return apperr.Invalid(fmt.Sprintf("Message exceeds %d byte limit", MaxMessageBytes))
	}
	if !utf8.ValidString(text) {
		return apperr.Invalid("Message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return apperr.Invalid(fmt.Sprintf("Message exceeds %d character limit", MaxTextChars))
	}
	return nil
}

// Preview shortens text to PreviewChars characters, adding "..." when cut.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewChars]) + "..."
}
