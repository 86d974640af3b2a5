// Package naming derives filesystem-safe names from product labels.
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const fallbackSlug = "product"

// Slug lower-cases name and collapses every run of characters other than
// letters and digits into a single underscore.
func Slug(name string) string {
	lower := cases.Lower(language.Und).String(strings.TrimSpace(name))
	var b strings.Builder
	pendingSep := false
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return fallbackSlug
	}
	return b.String()
}
