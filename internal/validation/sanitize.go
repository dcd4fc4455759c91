package validation

import (
	"regexp"
	"strings"
)

var (
	angleBrackets = regexp.MustCompile(`[<>]`)
	scriptScheme  = regexp.MustCompile(`(?i)javascript:`)
	eventHandler  = regexp.MustCompile(`(?i)on\w+=`)
)

// Sanitize strips markup-looking content from s. altered reports whether
// anything other than surrounding whitespace was removed, so callers can
// reject such input instead of silently accepting the stripped value.
func Sanitize(s string) (clean string, altered bool) {
	trimmed := strings.TrimSpace(s)
	clean = angleBrackets.ReplaceAllString(trimmed, "")
	clean = scriptScheme.ReplaceAllString(clean, "")
	clean = eventHandler.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)
	return clean, clean != trimmed
}

// Clean is Sanitize without the altered flag, for values about to be sent
// to the backend after they already passed validation.
func Clean(s string) string {
	clean, _ := Sanitize(s)
	return clean
}

// NormalizePhone removes common formatting characters and returns the
// remaining digits. ok is false if anything other than digits and
// formatting characters is present.
func NormalizePhone(s string) (digits string, ok bool) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	return b.String(), true
}
