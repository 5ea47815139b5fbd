package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at the given path and applies the schema.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("execute schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertTransactions writes the batch in one database transaction.
func (s *SQLiteStore) InsertTransactions(ctx context.Context, txns []*models.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, user_id, date, description, amount, category, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, txn := range txns {
		if txn.ID == "" {
			txn.ID = uuid.New().String()
		}
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx,
			txn.ID, txn.UserID, txn.Date.Format(dateLayout), txn.Description,
			txn.Amount.String(), txn.Category, txn.Status, txn.CreatedAt.UTC().Format(timestampLayout))
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", txn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const transactionColumns = `id, user_id, date, description, amount, category, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn                     models.Transaction
		date, amount, createdAt string
	)
	if err := row.Scan(&txn.ID, &txn.UserID, &date, &txn.Description, &amount, &txn.Category, &txn.Status, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if txn.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("parse date of %s: %w", txn.ID, err)
	}
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount of %s: %w", txn.ID, err)
	}
	if txn.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", txn.ID, err)
	}
	return &txn, nil
}

// ListTransactions returns the user's transactions, newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE user_id = ?
		ORDER BY date DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, txn)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

func (s *SQLiteStore) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET date = ?, description = ?, amount = ?, category = ?, status = ?
		WHERE id = ? AND user_id = ?`,
		txn.Date.Format(dateLayout), txn.Description, txn.Amount.String(), txn.Category, txn.Status,
		txn.ID, txn.UserID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireAffected(res)
}

// SumSpending adds up matching amounts in Go so decimal precision is kept.
func (s *SQLiteStore) SumSpending(ctx context.Context, filter models.SpendFilter) (decimal.Decimal, error) {
	query := `SELECT amount FROM transactions WHERE user_id = ?`
	args := []any{filter.UserID}

	if len(filter.Categories) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Categories)), ",")
		query += ` AND category IN (` + placeholders + `)`
		for _, c := range filter.Categories {
			args = append(args, c)
		}
	}
	if filter.StartDate != nil {
		query += ` AND date >= ?`
		args = append(args, filter.StartDate.Format(dateLayout))
	}
	if filter.EndDate != nil {
		query += ` AND date <= ?`
		args = append(args, filter.EndDate.Format(dateLayout))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query spending: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		total = total.Add(amt)
	}
	return total, rows.Err()
}

func (s *SQLiteStore) CreateBudget(ctx context.Context, budget *models.Budget) error {
	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = time.Now().UTC()
	}
	categories := budget.Categories
	if categories == nil {
		categories = []string{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, name, frequency, amount, spent, categories, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		budget.ID, budget.UserID, budget.Name, budget.Frequency, budget.Amount.String(), budget.Spent.String(),
		string(encoded), nullableDate(budget.StartDate), nullableDate(budget.EndDate),
		budget.CreatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	return nil
}

// ListBudgets returns the user's budgets in creation order.
func (s *SQLiteStore) ListBudgets(ctx context.Context, userID string) ([]*models.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, frequency, amount, spent, categories, start_date, end_date, created_at
		FROM budgets WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var result []*models.Budget
	for rows.Next() {
		var (
			b                                  models.Budget
			amount, spent, categories, created string
			start, end                         sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Frequency, &amount, &spent, &categories, &start, &end, &created); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of budget %s: %w", b.ID, err)
		}
		if b.Spent, err = decimal.NewFromString(spent); err != nil {
			return nil, fmt.Errorf("parse spent of budget %s: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(categories), &b.Categories); err != nil {
			return nil, fmt.Errorf("decode categories of budget %s: %w", b.ID, err)
		}
		if b.StartDate, err = parseNullableDate(start); err != nil {
			return nil, fmt.Errorf("parse start date of budget %s: %w", b.ID, err)
		}
		if b.EndDate, err = parseNullableDate(end); err != nil {
			return nil, fmt.Errorf("parse end date of budget %s: %w", b.ID, err)
		}
		if b.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at of budget %s: %w", b.ID, err)
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateBudget(ctx context.Context, budget *models.Budget) error {
	categories := budget.Categories
	if categories == nil {
		categories = []string{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}

	var spent, created string
	err = s.db.QueryRowContext(ctx, `
		UPDATE budgets SET name = ?, frequency = ?, amount = ?, categories = ?, start_date = ?, end_date = ?
		WHERE id = ? AND user_id = ?
		RETURNING spent, created_at`,
		budget.Name, budget.Frequency, budget.Amount.String(), string(encoded),
		nullableDate(budget.StartDate), nullableDate(budget.EndDate),
		budget.ID, budget.UserID).Scan(&spent, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}

	if budget.Spent, err = decimal.NewFromString(spent); err != nil {
		return fmt.Errorf("parse spent of budget %s: %w", budget.ID, err)
	}
	if budget.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return fmt.Errorf("parse created_at of budget %s: %w", budget.ID, err)
	}
	return nil
}

// DeleteBudget removes the budget and its alerts in one database transaction.
func (s *SQLiteStore) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, budgetID, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alerts WHERE budget_id = ? AND user_id = ?`, budgetID, userID); err != nil {
		return fmt.Errorf("delete budget alerts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddBudgetSpent(ctx context.Context, userID, budgetID string, delta decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT spent FROM budgets WHERE id = ? AND user_id = ?`, budgetID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read spent: %w", err)
	}
	spent, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse spent %q: %w", raw, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE budgets SET spent = ? WHERE id = ? AND user_id = ?`,
		spent.Add(delta).String(), budgetID, userID); err != nil {
		return fmt.Errorf("update spent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetBudgetSpent(ctx context.Context, userID, budgetID string, spent decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `UPDATE budgets SET spent = ? WHERE id = ? AND user_id = ?`,
		spent.String(), budgetID, userID)
	if err != nil {
		return fmt.Errorf("update spent: %w", err)
	}
	return requireAffected(res)
}

// CreateAlertIfAbsent relies on the partial unique index over open alerts;
// INSERT OR IGNORE turns a duplicate into a no-op.
func (s *SQLiteStore) CreateAlertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (id, user_id, budget_id, message, dismissed, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		alert.ID, alert.UserID, alert.BudgetID, alert.Message, alert.CreatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListAlerts returns the user's alerts, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, userID string, includeDismissed bool) ([]*models.Alert, error) {
	query := `SELECT id, user_id, budget_id, message, dismissed, created_at FROM alerts WHERE user_id = ?`
	if !includeDismissed {
		query += ` AND dismissed = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var result []*models.Alert
	for rows.Next() {
		var (
			a       models.Alert
			created string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.BudgetID, &a.Message, &a.Dismissed, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at of alert %s: %w", a.ID, err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) DismissAlert(ctx context.Context, userID, alertID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET dismissed = 1 WHERE id = ? AND user_id = ?`, alertID, userID)
	if err != nil {
		return fmt.Errorf("dismiss alert: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseNullableDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
