package store

import (
	"context"
	"errors"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// ErrNotFound is returned when a record does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations used by the ledger and alert engine.
// Every operation is scoped to a single user.
type Store interface {
	// Transaction operations
	InsertTransactions(ctx context.Context, txns []*models.Transaction) error
	ListTransactions(ctx context.Context, userID string) ([]*models.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error)
	// UpdateTransaction replaces the stored row matching txn.ID and txn.UserID.
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
	DeleteTransaction(ctx context.Context, userID, id string) error
	SumSpending(ctx context.Context, filter models.SpendFilter) (decimal.Decimal, error)

	// Budget operations
	CreateBudget(ctx context.Context, budget *models.Budget) error
	ListBudgets(ctx context.Context, userID string) ([]*models.Budget, error)
	// UpdateBudget replaces the budget's definition. Spent and CreatedAt are
	// kept and copied back into budget.
	UpdateBudget(ctx context.Context, budget *models.Budget) error
	// DeleteBudget removes the budget and its alerts.
	DeleteBudget(ctx context.Context, userID, budgetID string) error
	AddBudgetSpent(ctx context.Context, userID, budgetID string, delta decimal.Decimal) error
	SetBudgetSpent(ctx context.Context, userID, budgetID string, spent decimal.Decimal) error

	// Alert operations
	// CreateAlertIfAbsent inserts the alert unless an undismissed alert for the
	// same user and budget exists. The check and insert are atomic.
	CreateAlertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error)
	ListAlerts(ctx context.Context, userID string, includeDismissed bool) ([]*models.Alert, error)
	DismissAlert(ctx context.Context, userID, alertID string) error

	Close() error
}
