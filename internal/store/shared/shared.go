// Package shared holds text helpers used by the catalog stores and handlers.
package shared

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify folds s into lowercase ASCII words joined by single hyphens, so
// "Ciência & Ficção" and "ciencia ficcao" both give ciencia-ficcao.
// Genre slugs and suggestion matching are built on it. Input with no
// letters or digits gives "n-a".
func Slugify(s string) string {
	// a Chain is stateful, so each call builds its own
	strip := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(strip, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if r == '\'' || r == '’' {
			return -1
		}
		return unicode.ToLower(r)
	}, folded)

	words := strings.FieldsFunc(folded, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	if len(words) == 0 {
		return "n-a"
	}
	return strings.Join(words, "-")
}

// IsUUID accepts only the canonical 36-character form that document ids use.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
