package models

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	fallbackSlug = "pin"
	maxSlugLen   = 64
)

var (
	nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)
	validSlug  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)
)

// Slugify derives a filesystem-safe identifier from a title: diacritics are folded, the result is lower
// case ASCII with runs of other characters collapsed into a single dash.
func Slugify(title string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, title)
	if err != nil {
		folded = title
	}
	s := nonSlugRun.ReplaceAllString(strings.ToLower(folded), "-")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return fallbackSlug
	}
	return s
}

// ValidSlug reports whether s is safe to use as a file stem, i.e. no separators, dots or traversal
func ValidSlug(s string) bool {
	return validSlug.MatchString(s)
}
