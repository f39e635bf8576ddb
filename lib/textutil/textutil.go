package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeTitle lowercases a title and collapses every run of
// non-alphanumeric characters, so that titles differing only in
// punctuation, casing or spacing compare equal.
func NormalizeTitle(title string) string {
	title = strings.ToLower(title)
	return nonAlphanumericRegex.ReplaceAllString(title, "")
}

// CollapseWhitespace trims a scraped string and squeezes inner
// whitespace runs to a single space.
func CollapseWhitespace(s string) string {
	s = strings.Trim(s, " \n\t")
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// DigitsOnly strips everything except ascii digits, used for pulling
// counts out of scraped stat badges like "Sub: 12".
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
