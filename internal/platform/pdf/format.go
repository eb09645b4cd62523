package pdf

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var frBE = language.MustParse("fr-BE")

// Euro formats an amount the fr-BE way, e.g. "1 234,50 €" with a no-break space before the sign.
func Euro(amount float64) string {
	p := message.NewPrinter(frBE)
	return strings.TrimSpace(p.Sprintf("%.2f", amount)) + "\u00a0€"
}

// Date formats an RFC 3339 timestamp or YYYY-MM-DD date as dd/mm/yyyy in loc.
func Date(value string, loc *time.Location) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc).Format("02/01/2006")
	}
	if t, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return t.Format("02/01/2006")
	}
	return value
}
