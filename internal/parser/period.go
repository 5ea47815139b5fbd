package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// statementPeriodPattern matches "Statement period: December 4, 2024 to January 3, 2025",
// tolerating a missing colon or comma, a dash instead of a colon, and extra spaces.
var statementPeriodPattern = regexp.MustCompile(
	`(?i)statement\s+period\s*[:\-]?\s*([A-Za-z]+\s+\d{1,2},?\s*\d{4})\s*to\s*([A-Za-z]+\s+\d{1,2},?\s*\d{4})`,
)

// ExtractPeriod scans raw statement text for the statement period
// declaration. The dates are returned verbatim; nil means not found.
func ExtractPeriod(text string) *models.StatementPeriod {
	m := statementPeriodPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &models.StatementPeriod{
		StartDate: strings.TrimSpace(m[1]),
		EndDate:   strings.TrimSpace(m[2]),
	}
}
