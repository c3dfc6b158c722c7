// Package privacy removes contact details and credentials from chat messages
// before they are written to the conversation log.
package privacy

import (
	"regexp"
	"strings"
	"unicode"
)

// Replacement markers.
const (
	EmailMarker    = "[EMAIL]"
	PhoneMarker    = "[PHONE]"
	RedactedMarker = "[REDACTED]"
)

// minPhoneDigits is the shortest digit run treated as a phone number.
// Dates and times stay below it.
const minPhoneDigits = 9

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// Latin, Arabic-Indic and Extended Arabic-Indic digits with common separators.
	phonePattern = regexp.MustCompile(`(?:\+|00)?[0-9\x{0660}-\x{0669}\x{06F0}-\x{06F9}][0-9\x{0660}-\x{0669}\x{06F0}-\x{06F9} ().-]{6,}[0-9\x{0660}-\x{0669}\x{06F0}-\x{06F9}]`)

	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(password|passwd|pwd|otp|pin)\s*[:=]\s*\S+`),
		regexp.MustCompile(`(?i)(api[_-]?key|secret|token)\s*[:=]\s*['"]?[a-zA-Z0-9_-]{12,}['"]?`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
		regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	}
)

// Redact replaces credentials, email addresses and phone numbers in text.
// Text without any of them is returned unchanged.
func Redact(text string) string {
	if text == "" {
		return text
	}

	result := text
	for _, pattern := range credentialPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			// Keep the key name so the message still reads naturally.
			if idx := strings.IndexAny(match, ":="); idx != -1 {
				return match[:idx+1] + RedactedMarker
			}
			return RedactedMarker
		})
	}
	result = emailPattern.ReplaceAllString(result, EmailMarker)
	result = phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		if countDigits(match) < minPhoneDigits {
			return match
		}
		return PhoneMarker
	})
	return result
}

// ContainsPersonalData reports whether Redact would change text.
func ContainsPersonalData(text string) bool {
	return Redact(text) != text
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
