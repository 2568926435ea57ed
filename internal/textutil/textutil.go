package textutil

import (
	"strings"
	"unicode"
)

// FirstWord returns the leading token of s up to the first whitespace,
// lower-cased. A string without whitespace is returned whole.
func FirstWord(s string) string {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// Slug lower-cases s and joins its words with underscores, for use as a
// topic segment: "Incoming Call" becomes "incoming_call".
func Slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "_"))
}
