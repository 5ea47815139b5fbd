package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// monthDay is a 3-letter month abbreviation followed by a 1-2 digit day,
// optionally without the separating space ("Dec 31", "Dec31").
const monthDay = `[A-Z][a-z]{2}\s*\d{1,2}`

// signedAmount is a run of digits (optionally comma-grouped) with exactly
// two fraction digits, optionally negative.
const signedAmount = `-?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}`

var (
	// trailingAmount signals a completed logical line.
	trailingAmount = regexp.MustCompile(signedAmount + `$`)
	// gluedDates splits "Dec 31Jan 03" into "Dec 31 Jan 03".
	gluedDates = regexp.MustCompile(`(` + monthDay + `)(` + monthDay + `)`)
	// datePairStart marks the first physical line of a new transaction.
	datePairStart = regexp.MustCompile(`^` + monthDay + `\s+` + monthDay)
	// monthDayParts captures the month and day of a single date token.
	monthDayParts = regexp.MustCompile(`^([A-Za-z]{3})\s*(\d{1,2})$`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// parseAmount converts "1,234.56" or "-25.00" to a decimal.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// normalizeMonthDay rewrites "Dec31" or "Dec  31" as "Dec 31".
func normalizeMonthDay(s string) string {
	m := monthDayParts.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return strings.TrimSpace(s)
	}
	return m[1] + " " + m[2]
}

// collapseSpaces replaces whitespace runs with one space and trims.
func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// alternation builds a regexp alternation of literal strings.
func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	return strings.Join(quoted, "|")
}
