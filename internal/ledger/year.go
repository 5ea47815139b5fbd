package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	monthDayInput = regexp.MustCompile(`^([A-Za-z]{3})[A-Za-z]*\.?\s*(\d{1,2})$`)
	periodLayouts = []string{"January 2 2006", "Jan 2 2006"}
)

// YearResolver assigns calendar years to month/day statement dates.
type YearResolver struct {
	startYear  int
	endYear    int
	startMonth time.Month
}

// NewYearResolver derives the year context from the statement period. Without
// both period dates, every date resolves to fallbackYear; a zero fallbackYear
// makes a missing period an error.
func NewYearResolver(period *models.StatementPeriod, fallbackYear int) (*YearResolver, error) {
	if !period.Complete() {
		if fallbackYear == 0 {
			return nil, ErrUnknownPeriod
		}
		return &YearResolver{startYear: fallbackYear, endYear: fallbackYear, startMonth: time.January}, nil
	}

	start, err := ParseStatementDate(period.StartDate)
	if err != nil {
		return nil, &ValidationError{Row: -1, Field: "statementStartDate", Value: period.StartDate, Err: err}
	}
	end, err := ParseStatementDate(period.EndDate)
	if err != nil {
		return nil, &ValidationError{Row: -1, Field: "statementEndDate", Value: period.EndDate, Err: err}
	}

	return &YearResolver{
		startYear:  start.Year(),
		endYear:    end.Year(),
		startMonth: start.Month(),
	}, nil
}

// Resolve builds the full date for a "Mon D" statement date. Months earlier
// than the period's start month belong to the end year when the statement
// crosses a year boundary.
func (r *YearResolver) Resolve(monthDay string) (time.Time, error) {
	m := monthDayInput.FindStringSubmatch(strings.TrimSpace(monthDay))
	if m == nil {
		return time.Time{}, fmt.Errorf("expected month abbreviation and day")
	}
	mon := title(m[1])

	month, err := time.Parse("Jan", mon)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown month %q", m[1])
	}

	year := r.startYear
	if r.startYear != r.endYear && month.Month() < r.startMonth {
		year = r.endYear
	}

	return time.Parse("2006 Jan 2", strconv.Itoa(year)+" "+mon+" "+m[2])
}

// ParseStatementDate parses a long-form statement date such as
// "December 4, 2024" or "Dec 4 2024".
func ParseStatementDate(s string) (time.Time, error) {
	normalized := strings.Join(strings.Fields(strings.ReplaceAll(s, ",", " ")), " ")
	normalized = title(normalized)

	var lastErr error
	for _, layout := range periodLayouts {
		t, err := time.Parse(layout, normalized)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// title returns s with each word capitalized. Casers hold state, so each call
// gets its own.
func title(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}
