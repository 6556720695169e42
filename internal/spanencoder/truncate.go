package spanencoder

import (
	"strings"
	"unicode/utf8"
)

// validUTF8 replaces each run of invalid UTF-8 in s with U+FFFD. Every string
// field goes through it, in both the sizing and the writing pass, because
// protobuf string fields must hold valid UTF-8.
func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncate makes s valid UTF-8 and cuts it to at most limit bytes without
// splitting a character. Sizing and writing both go through here so they
// agree on the cut point.
func truncate(s string, limit int) string {
	s = validUTF8(s)
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
