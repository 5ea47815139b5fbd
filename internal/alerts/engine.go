package alerts

import (
	"context"
	"fmt"

	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultThresholdPercent is the utilization at which a budget alert is raised.
const DefaultThresholdPercent = 80

var hundred = decimal.NewFromInt(100)

// Engine evaluates budget utilization and maintains budget alerts.
type Engine struct {
	store     store.Store
	threshold decimal.Decimal
}

// NewEngine creates an engine alerting at thresholdPercent of a budget's
// amount. A non-positive threshold uses DefaultThresholdPercent.
func NewEngine(s store.Store, thresholdPercent float64) *Engine {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultThresholdPercent
	}
	return &Engine{store: s, threshold: decimal.NewFromFloat(thresholdPercent)}
}

// Evaluate recomputes alert state for every budget owned by userID. A budget
// whose spending sum fails is logged and skipped; only a failure to list
// budgets is returned.
func (e *Engine) Evaluate(ctx context.Context, userID string) error {
	log := logger.FromContext(ctx).With().Str("component", "budget_alerts").Str("user_id", userID).Logger()

	budgets, err := e.store.ListBudgets(ctx, userID)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	for _, b := range budgets {
		usage, err := e.usage(ctx, b)
		if err != nil {
			log.Error().Err(err).Str("budget_id", b.ID).Msg("failed to sum budget spending")
			continue
		}
		if usage.UsedPercent.LessThan(e.threshold) {
			continue
		}

		alert := &models.Alert{
			UserID:   userID,
			BudgetID: b.ID,
			Message:  thresholdMessage(b.Name, usage.UsedPercent),
		}
		created, err := e.store.CreateAlertIfAbsent(ctx, alert)
		if err != nil {
			log.Error().Err(err).Str("budget_id", b.ID).Msg("failed to create budget alert")
			continue
		}
		if created {
			log.Info().Str("budget_id", b.ID).Str("used_percent", usage.UsedPercent.StringFixed(2)).Msg("budget alert created")
		}
	}
	return nil
}

// Usage reports spending against every budget owned by userID.
func (e *Engine) Usage(ctx context.Context, userID string) ([]models.BudgetUsage, error) {
	budgets, err := e.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	result := make([]models.BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		usage, err := e.usage(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", b.ID, err)
		}
		result = append(result, usage)
	}
	return result, nil
}

// RecalculateSpent resets each budget's spent total to the sum of the
// transactions it currently matches.
func (e *Engine) RecalculateSpent(ctx context.Context, userID string) ([]models.BudgetUsage, error) {
	log := logger.FromContext(ctx)

	budgets, err := e.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	result := make([]models.BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		usage, err := e.usage(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", b.ID, err)
		}
		if err := e.store.SetBudgetSpent(ctx, userID, b.ID, usage.TotalSpent); err != nil {
			return nil, fmt.Errorf("budget %s: set spent: %w", b.ID, err)
		}
		b.Spent = usage.TotalSpent
		result = append(result, usage)
	}

	log.Debug().Str("user_id", userID).Int("budgets", len(result)).Msg("budget spent recalculated")
	return result, nil
}

// ListAlerts returns the user's undismissed alerts, newest first.
func (e *Engine) ListAlerts(ctx context.Context, userID string) ([]*models.Alert, error) {
	alerts, err := e.store.ListAlerts(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	return alerts, nil
}

// DismissAlert marks one of the user's alerts dismissed. Alerts owned by
// another user are reported as store.ErrNotFound.
func (e *Engine) DismissAlert(ctx context.Context, userID, alertID string) error {
	return e.store.DismissAlert(ctx, userID, alertID)
}

func (e *Engine) usage(ctx context.Context, b *models.Budget) (models.BudgetUsage, error) {
	total, err := e.store.SumSpending(ctx, models.FilterFor(b))
	if err != nil {
		return models.BudgetUsage{}, err
	}
	return models.BudgetUsage{
		Budget:      b,
		TotalSpent:  total,
		UsedPercent: UsedPercent(total, b.Amount),
	}, nil
}

// UsedPercent is spent as a percentage of amount. A non-positive amount
// yields zero.
func UsedPercent(spent, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return spent.Mul(hundred).Div(amount)
}

func thresholdMessage(budgetName string, percent decimal.Decimal) string {
	return fmt.Sprintf("You're nearing your %s budget! %s%% used.", budgetName, percent.StringFixed(2))
}
