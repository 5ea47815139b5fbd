package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
)

// LineParser turns one logical statement line into a candidate transaction.
type LineParser interface {
	// ParseLine reports false when the line is not a transaction.
	ParseLine(line string) (models.CandidateTransaction, bool)
	// Name returns the human-readable statement layout name.
	Name() string
}

// Parser converts raw statement text into candidate transactions.
type Parser struct {
	template      models.Template
	reconstructor *Reconstructor
	lines         LineParser
}

// New returns the parser for the given statement template.
func New(template models.Template, cfg Config) (*Parser, error) {
	switch template {
	case models.TemplateSimplii:
		return &Parser{
			template:      template,
			reconstructor: NewReconstructor(cfg),
			lines:         NewSimpliiLineParser(cfg),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported statement template: %q", template)
	}
}

// Name returns the layout name of the underlying line parser.
func (p *Parser) Name() string {
	return p.lines.Name()
}

// Parse reconstructs logical lines from the raw text, parses each one and
// extracts the statement period. Lines that do not match the grammar are
// dropped and only recorded in the debug lines.
func (p *Parser) Parse(ctx context.Context, text string) *models.ParseResult {
	log := logger.FromContext(ctx)

	result := &models.ParseResult{
		Template:     p.template,
		Transactions: []models.CandidateTransaction{},
		Period:       ExtractPeriod(text),
	}

	for i, line := range p.reconstructor.Lines(text) {
		dl := models.DebugLine{LineNum: i + 1, Text: line}
		if txn, ok := p.lines.ParseLine(line); ok {
			dl.Result = "parsed"
			result.Transactions = append(result.Transactions, txn)
		} else {
			dl.Result = "no-match"
			log.Debug().Str("line", line).Msg("no match")
		}
		result.DebugLines = append(result.DebugLines, dl)
	}

	log.Debug().
		Int("transactions", len(result.Transactions)).
		Int("lines", len(result.DebugLines)).
		Bool("period_found", result.Period != nil).
		Msg("statement parsed")

	return result
}

// AutoDetect tries to identify the statement template from its text.
func AutoDetect(text string) (models.Template, error) {
	if strings.Contains(strings.ToLower(text), "simplii") {
		return models.TemplateSimplii, nil
	}
	return "", fmt.Errorf("could not detect statement template from content")
}
