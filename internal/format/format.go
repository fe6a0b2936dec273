// Package format holds display formatting helpers shared by the API layer
// and the email templates.
package format

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var kenyanEnglish = language.MustParse("en-KE")

// Currency renders a whole-shilling amount for display, e.g. "KES 1,500".
// Fractions are truncated, matching what is actually charged via M-Pesa.
func Currency(amount float64) string {
	p := message.NewPrinter(kenyanEnglish)
	return p.Sprintf("KES %v", number.Decimal(math.Trunc(amount), number.MaxFractionDigits(0)))
}

// Date renders a timestamp for customer-facing display.
func Date(t time.Time) string {
	return t.Format("2 January 2006, 15:04")
}

// Truncate caps s at max characters. Daraja imposes tight limits on the
// account reference (12) and transaction description (13).
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
