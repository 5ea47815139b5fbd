package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// SimpliiLineParser handles Simplii Financial credit card statements.
//
// One logical line per transaction:
//
//	Trans date | Post date | Merchant [Region] Category | Amount
//
// Example line: "Dec 31 Jan 03UBER CANADA/UBERTRIP ON Transportation-25.00"
type SimpliiLineParser struct {
	categories []string
	region     *regexp.Regexp
}

var simpliiTxnPattern = regexp.MustCompile(
	`^(` + monthDay + `)\s+(` + monthDay + `)(.+?)(` + signedAmount + `)$`,
)

// NewSimpliiLineParser builds a line parser over the given vocabulary.
func NewSimpliiLineParser(cfg Config) *SimpliiLineParser {
	p := &SimpliiLineParser{categories: cfg.Categories}
	if regions := alternation(cfg.Regions); regions != "" {
		p.region = regexp.MustCompile(`\s(` + regions + `)$`)
	}
	return p
}

func (p *SimpliiLineParser) Name() string {
	return "Simplii Financial"
}

// ParseLine splits a logical line into a candidate transaction.
// It reports false when the line does not match the grammar.
func (p *SimpliiLineParser) ParseLine(line string) (models.CandidateTransaction, bool) {
	m := simpliiTxnPattern.FindStringSubmatch(collapseSpaces(line))
	if m == nil {
		return models.CandidateTransaction{}, false
	}

	amount, err := parseAmount(m[4])
	if err != nil {
		return models.CandidateTransaction{}, false
	}

	description, category := p.splitCategory(strings.TrimSpace(m[3]))

	return models.CandidateTransaction{
		TransDate:   normalizeMonthDay(m[1]),
		PostDate:    normalizeMonthDay(m[2]),
		Description: description,
		Category:    category,
		Amount:      amount,
		Status:      models.StatusPending,
	}, true
}

// splitCategory separates the merchant text from a known category suffix.
// The first category in vocabulary order that the blob ends with wins.
// A province code left between merchant and category is dropped.
func (p *SimpliiLineParser) splitCategory(blob string) (string, string) {
	for _, cat := range p.categories {
		if cat == "" || !strings.HasSuffix(blob, cat) {
			continue
		}
		description := strings.TrimSpace(strings.TrimSuffix(blob, cat))
		if p.region != nil {
			description = strings.TrimSpace(p.region.ReplaceAllString(description, ""))
		}
		return description, cat
	}
	return blob, models.Uncategorized
}
