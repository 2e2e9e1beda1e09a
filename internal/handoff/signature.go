package handoff

import (
	"regexp"
	"strings"
)

// SignatureLength is the number of runes kept from the payload's first line.
const SignatureLength = 40

var (
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace replaces non-breaking spaces, drops horizontal
// whitespace before line breaks, collapses runs of blank lines and trims.
// It is idempotent.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SignatureOf derives the short fingerprint used to verify that a composer
// holds the payload we expect. It is not a digest: two payloads sharing a
// first line share a signature.
func SignatureOf(text string) string {
	norm := NormalizeWhitespace(text)
	first, _, _ := strings.Cut(norm, "\n")
	first = strings.ToLower(strings.TrimSpace(first))
	runes := []rune(first)
	if len(runes) > SignatureLength {
		runes = runes[:SignatureLength]
	}
	return string(runes)
}

// ContainsSignature reports whether haystack contains sig, ignoring case and
// non-breaking spaces. An empty signature never matches.
func ContainsSignature(haystack, sig string) bool {
	if sig == "" {
		return false
	}
	h := strings.ToLower(strings.ReplaceAll(haystack, "\u00a0", " "))
	return strings.Contains(h, strings.ToLower(sig))
}
