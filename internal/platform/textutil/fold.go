package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

func stripMarks(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// Fold lower-cases value and removes diacritics: "Châssis" becomes "chassis".
func Fold(value string) string {
	return strings.ToLower(stripMarks(value))
}

// CollapseSpaces trims value and reduces inner whitespace runs to one space.
func CollapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// SlugifyUpper turns a name into an upper-case ASCII folder token:
// diacritics are dropped, non-alphanumeric runs become "_" and edge underscores are trimmed.
func SlugifyUpper(value string) string {
	plain := stripMarks(value)
	var b strings.Builder
	pendingSep := false
	for _, r := range plain {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// Truncate caps value at limit runes.
func Truncate(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(value)
	if len(r) <= limit {
		return value
	}
	return string(r[:limit])
}
