// Package extract holds the pure contact and technology heuristics applied to
// listing text and visited websites.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Indian mobile numbering: optional +91/91/0 prefix, leading 6-9, ten digits.
	mobilePattern = regexp.MustCompile(`(?:\+91[\s-]?|91[\s-]?|0)?[6-9]\d{4}[\s-]?\d{5}`)
	// Generic international fallback: optional country code, area code bare or
	// in parentheses, grouped digits. A match may start at "(".
	intlPattern  = regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)|\d{2,4})[\s.-]?\d{3,4}[\s.-]?\d{3,4}`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".avif", ".ico"}

// Phone returns the first phone number found in text, preferring Indian mobile
// numbers over the generic pattern. It returns "" when nothing matches.
func Phone(text string) string {
	if text == "" {
		return ""
	}
	if m := firstIsolated(mobilePattern, text, 10, 13); m != "" {
		return strings.TrimSpace(m)
	}
	return strings.TrimSpace(firstIsolated(intlPattern, text, 7, 15))
}

// firstIsolated returns the first match not glued to neighbouring digits whose
// digit count falls inside [minDigits, maxDigits].
func firstIsolated(re *regexp.Regexp, text string, minDigits, maxDigits int) string {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isDigit(text[start-1]) {
			continue
		}
		if end < len(text) && isDigit(text[end]) {
			continue
		}
		match := text[start:end]
		n := countDigits(match)
		if n < minDigits || n > maxDigits {
			continue
		}
		return match
	}
	return ""
}

// Email returns the first email address in text, skipping asset filenames such
// as logo@2x.png. It returns "" when nothing matches.
func Email(text string) string {
	for _, m := range emailPattern.FindAllString(text, -1) {
		lower := strings.ToLower(m)
		asset := false
		for _, suffix := range assetSuffixes {
			if strings.HasSuffix(lower, suffix) {
				asset = true
				break
			}
		}
		if !asset {
			return m
		}
	}
	return ""
}

type techMarker struct {
	tag     string
	markers []string
}

// techMarkers is checked in order; matching is case-sensitive.
var techMarkers = []techMarker{
	{tag: "WordPress", markers: []string{"wp-content", "wp-includes"}},
	{tag: "Wix", markers: []string{"wix.com", "wixstatic"}},
	{tag: "Shopify", markers: []string{"shopify.com", "cdn.shopify"}},
	{tag: "Squarespace", markers: []string{"squarespace"}},
	{tag: "Webflow", markers: []string{"webflow"}},
	{tag: "Next.js", markers: []string{"_next/", "__NEXT_DATA__"}},
	{tag: "React", markers: []string{"data-reactroot"}},
}

// TechStack fingerprints raw markup and returns the matched tags comma-joined,
// each at most once. It returns "" when no marker is present.
func TechStack(markup string) string {
	if markup == "" {
		return ""
	}
	var tags []string
	for _, tm := range techMarkers {
		for _, marker := range tm.markers {
			if strings.Contains(markup, marker) {
				tags = append(tags, tm.tag)
				break
			}
		}
	}
	return strings.Join(tags, ",")
}

// Snippet strips everything but letters, digits, and spaces, collapses runs of
// whitespace, and truncates the result to max runes.
func Snippet(text string, max int) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if max > 0 {
		if runes := []rune(out); len(runes) > max {
			out = strings.TrimSpace(string(runes[:max]))
		}
	}
	return out
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			n++
		}
	}
	return n
}
