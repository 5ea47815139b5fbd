package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// CSVWriter writes parsed candidates and persisted transactions as CSV.
type CSVWriter struct {
	IncludeHeader bool
}

// WriteCandidatesToFile writes a parse result to a CSV file at the given path.
func (w *CSVWriter) WriteCandidatesToFile(path string, result *models.ParseResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.WriteCandidates(f, result)
}

// WriteCandidates writes candidate transactions awaiting review.
func (w *CSVWriter) WriteCandidates(out io.Writer, result *models.ParseResult) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		if result.Template != "" {
			writer.Write([]string{"# Template", string(result.Template)})
		}
		if result.Period != nil {
			writer.Write([]string{"# Statement Period", result.Period.StartDate + " to " + result.Period.EndDate})
		}
	}

	header := []string{"Trans Date", "Post Date", "Description", "Category", "Amount", "Status"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, txn := range result.Transactions {
		row := []string{
			txn.TransDate,
			txn.PostDate,
			txn.Description,
			txn.Category,
			formatAmount(txn.Amount),
			txn.Status,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteTransactions writes persisted ledger transactions.
func (w *CSVWriter) WriteTransactions(out io.Writer, txns []*models.Transaction) error {
	writer := csv.NewWriter(out)

	header := []string{"Date", "Description", "Category", "Amount", "Status"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, txn := range txns {
		row := []string{
			txn.Date.Format("2006-01-02"),
			txn.Description,
			txn.Category,
			formatAmount(txn.Amount),
			txn.Status,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
