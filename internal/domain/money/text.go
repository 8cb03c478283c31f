package money

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText strips diacritics, lowercases and collapses whitespace.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// ContainsExact reports whether needle occurs in haystack, after normalization, delimited on
// both sides by the start/end of the text or by a rune that is not a letter, digit or '_'.
// "pruebita_2" therefore does not contain "pruebita".
func ContainsExact(haystack, needle string) bool {
	h := NormalizeText(haystack)
	n := NormalizeText(needle)
	if n == "" {
		return false
	}
	for offset := 0; offset <= len(h)-len(n); {
		i := strings.Index(h[offset:], n)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(n)
		if boundaryBefore(h, start) && boundaryAfter(h, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

// EqualFold reports whether a and b are equal after normalization.
func EqualFold(a, b string) bool {
	return NormalizeText(a) == NormalizeText(b)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(s[:i])
	return !isIdentityRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := []rune(s[i:])[0]
	return !isIdentityRune(r)
}

func lastRune(s string) rune {
	rs := []rune(s)
	return rs[len(rs)-1]
}
