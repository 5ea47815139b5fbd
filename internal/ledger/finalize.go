package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/store"
	"github.com/shopspring/decimal"
)

// AlertEvaluator recomputes budget alerts for a user after new transactions land.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, userID string) error
}

// Options configures a Finalizer.
type Options struct {
	// FallbackYear is used when a statement has no period. Zero rejects such statements.
	FallbackYear int
}

// Finalizer turns reviewed candidates into persisted transactions.
type Finalizer struct {
	store  store.Store
	alerts AlertEvaluator
	opts   Options
}

func NewFinalizer(s store.Store, alerts AlertEvaluator, opts Options) *Finalizer {
	return &Finalizer{store: s, alerts: alerts, opts: opts}
}

// Build validates every candidate and returns persist-ready transactions.
// Nothing is returned unless every row resolves to a valid date.
func (f *Finalizer) Build(userID string, candidates []models.CandidateTransaction, period *models.StatementPeriod) ([]*models.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	if candidates == nil {
		return nil, ErrNoCandidates
	}
	if len(candidates) == 0 {
		return []*models.Transaction{}, nil
	}

	resolver, err := NewYearResolver(period, f.opts.FallbackYear)
	if err != nil {
		return nil, err
	}

	txns := make([]*models.Transaction, 0, len(candidates))
	for i, c := range candidates {
		date, err := resolver.Resolve(c.TransDate)
		if err != nil {
			return nil, &ValidationError{Row: i, Field: "transDate", Value: c.TransDate, Err: err}
		}

		category := strings.TrimSpace(c.Category)
		if category == "" {
			category = models.Uncategorized
		}

		txns = append(txns, &models.Transaction{
			ID:          uuid.New().String(),
			UserID:      userID,
			Date:        date,
			Description: strings.TrimSpace(c.Description),
			Amount:      c.Amount,
			Category:    category,
			Status:      models.StatusApproved,
		})
	}
	return txns, nil
}

// Finalize persists the batch, then re-evaluates alerts, then adds the new
// amounts to every matching budget's spent total. Alert and budget update
// failures are logged and do not fail the call; the batch is already committed.
func (f *Finalizer) Finalize(ctx context.Context, userID string, candidates []models.CandidateTransaction, period *models.StatementPeriod) (int, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()

	txns, err := f.Build(userID, candidates, period)
	if err != nil {
		return 0, err
	}
	if len(txns) == 0 {
		return 0, nil
	}

	if err := f.store.InsertTransactions(ctx, txns); err != nil {
		return 0, fmt.Errorf("insert transactions: %w", err)
	}
	log.Info().Int("count", len(txns)).Msg("transactions finalized")

	if f.alerts != nil {
		if err := f.alerts.Evaluate(ctx, userID); err != nil {
			log.Error().Err(err).Msg("budget alert evaluation failed")
		}
	}

	f.applyToBudgets(ctx, userID, txns)

	return len(txns), nil
}

func (f *Finalizer) applyToBudgets(ctx context.Context, userID string, txns []*models.Transaction) {
	log := logger.FromContext(ctx)

	budgets, err := f.store.ListBudgets(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to load budgets for spent update")
		return
	}

	for _, b := range budgets {
		delta := decimal.Zero
		matched := 0
		for _, txn := range txns {
			if b.Matches(txn.Category, txn.Date) {
				delta = delta.Add(txn.Amount)
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		if err := f.store.AddBudgetSpent(ctx, userID, b.ID, delta); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("budget_id", b.ID).Msg("failed to update budget spent")
			continue
		}
		log.Debug().Str("budget_id", b.ID).Str("delta", delta.String()).Int("transactions", matched).Msg("budget spent updated")
	}
}
