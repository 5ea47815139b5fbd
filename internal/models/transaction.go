package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDeleted  = "deleted"
)

func init() {
	// amounts are JSON numbers on the wire
	decimal.MarshalJSONWithoutQuotes = true
}

// Uncategorized is assigned when no known category suffix is found.
const Uncategorized = "Uncategorized"

// CandidateTransaction is a parsed statement row awaiting user review.
// Dates carry month and day only ("Dec 31"); the year is resolved at finalize.
type CandidateTransaction struct {
	TransDate   string          `json:"transDate"`
	PostDate    string          `json:"postDate"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
}

// StatementPeriod is the "statement period: X to Y" declaration, verbatim.
type StatementPeriod struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Complete reports whether both dates are present. A half-supplied period
// is treated as no period at all.
func (p *StatementPeriod) Complete() bool {
	return p != nil && strings.TrimSpace(p.StartDate) != "" && strings.TrimSpace(p.EndDate) != ""
}

// Template identifies a statement layout convention.
type Template string

const (
	TemplateSimplii Template = "simplii"
)

// DebugLine captures what the parser did with each logical line.
type DebugLine struct {
	LineNum int    `json:"lineNum"`
	Text    string `json:"text"`
	Result  string `json:"result"` // "parsed" or "no-match"
}

// ParseResult is the output of parsing one statement's raw text.
type ParseResult struct {
	Template     Template               `json:"template"`
	Transactions []CandidateTransaction `json:"transactions"`
	Period       *StatementPeriod       `json:"-"`
	DebugLines   []DebugLine            `json:"debugLines,omitempty"`
}

// Transaction is a persisted ledger entry owned by one user.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}
