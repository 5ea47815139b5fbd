package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore implements Store interface with in-memory storage
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[string]*models.Transaction
	budgets      map[string]*models.Budget
	alerts       map[string]*models.Alert
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*models.Transaction),
		budgets:      make(map[string]*models.Budget),
		alerts:       make(map[string]*models.Alert),
	}
}

func (m *MemoryStore) InsertTransactions(ctx context.Context, txns []*models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, txn := range txns {
		if txn.ID == "" {
			txn.ID = uuid.New().String()
		}
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = now
		}
		stored := *txn
		m.transactions[txn.ID] = &stored
	}
	return nil
}

// ListTransactions returns the user's transactions, newest first.
func (m *MemoryStore) ListTransactions(ctx context.Context, userID string) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Transaction
	for _, txn := range m.transactions {
		if txn.UserID != userID {
			continue
		}
		copied := *txn
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].ID < result[j].ID
		}
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.transactions[id]
	if !ok || txn.UserID != userID {
		return nil, ErrNotFound
	}
	copied := *txn
	return &copied, nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.transactions[txn.ID]
	if !ok || existing.UserID != txn.UserID {
		return ErrNotFound
	}
	stored := *txn
	stored.CreatedAt = existing.CreatedAt
	m.transactions[txn.ID] = &stored
	return nil
}

func (m *MemoryStore) DeleteTransaction(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[id]
	if !ok || txn.UserID != userID {
		return ErrNotFound
	}
	delete(m.transactions, id)
	return nil
}

func (m *MemoryStore) SumSpending(ctx context.Context, filter models.SpendFilter) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	match := models.Budget{
		Categories: filter.Categories,
		StartDate:  filter.StartDate,
		EndDate:    filter.EndDate,
	}
	total := decimal.Zero
	for _, txn := range m.transactions {
		if txn.UserID != filter.UserID {
			continue
		}
		if !match.Matches(txn.Category, txn.Date) {
			continue
		}
		total = total.Add(txn.Amount)
	}
	return total, nil
}

func (m *MemoryStore) CreateBudget(ctx context.Context, budget *models.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = time.Now().UTC()
	}
	stored := *budget
	stored.Categories = append([]string(nil), budget.Categories...)
	m.budgets[budget.ID] = &stored
	return nil
}

// ListBudgets returns the user's budgets in creation order.
func (m *MemoryStore) ListBudgets(ctx context.Context, userID string) ([]*models.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Budget
	for _, b := range m.budgets {
		if b.UserID != userID {
			continue
		}
		copied := *b
		copied.Categories = append([]string(nil), b.Categories...)
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) UpdateBudget(ctx context.Context, budget *models.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.budgets[budget.ID]
	if !ok || existing.UserID != budget.UserID {
		return ErrNotFound
	}
	budget.Spent = existing.Spent
	budget.CreatedAt = existing.CreatedAt
	stored := *budget
	stored.Categories = append([]string(nil), budget.Categories...)
	m.budgets[budget.ID] = &stored
	return nil
}

func (m *MemoryStore) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.budgets[budgetID]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	delete(m.budgets, budgetID)
	for id, a := range m.alerts {
		if a.UserID == userID && a.BudgetID == budgetID {
			delete(m.alerts, id)
		}
	}
	return nil
}

func (m *MemoryStore) AddBudgetSpent(ctx context.Context, userID, budgetID string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.budgets[budgetID]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	b.Spent = b.Spent.Add(delta)
	return nil
}

func (m *MemoryStore) SetBudgetSpent(ctx context.Context, userID, budgetID string, spent decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.budgets[budgetID]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	b.Spent = spent
	return nil
}

func (m *MemoryStore) CreateAlertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.UserID == alert.UserID && a.BudgetID == alert.BudgetID && !a.Dismissed {
			return false, nil
		}
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	stored := *alert
	m.alerts[alert.ID] = &stored
	return true, nil
}

// ListAlerts returns the user's alerts, newest first.
func (m *MemoryStore) ListAlerts(ctx context.Context, userID string, includeDismissed bool) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Alert
	for _, a := range m.alerts {
		if a.UserID != userID {
			continue
		}
		if a.Dismissed && !includeDismissed {
			continue
		}
		copied := *a
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) DismissAlert(ctx context.Context, userID, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[alertID]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	a.Dismissed = true
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
