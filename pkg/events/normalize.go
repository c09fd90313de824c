package events

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	// Unicode letters and digits stay, so accented text from any sensor
	// locale survives normalization.
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_ ]`)
)

// NormalizeText canonicalizes an event description for comparison:
// lowercase, whitespace runs collapsed to a single space, everything except
// letters, digits, underscores and spaces stripped, then trimmed.
// The result is deterministic and idempotent.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = disallowed.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
