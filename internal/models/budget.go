package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget frequencies.
const (
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
	FrequencyCustom  = "custom"
)

// Budget is a user-managed spending limit over a set of categories.
// An empty Categories set matches every category.
type Budget struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Name       string          `json:"name"`
	Frequency  string          `json:"frequency"`
	Amount     decimal.Decimal `json:"amount"`
	Spent      decimal.Decimal `json:"spent"`
	Categories []string        `json:"categories"`
	StartDate  *time.Time      `json:"startDate,omitempty"`
	EndDate    *time.Time      `json:"endDate,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Matches reports whether a transaction with the given category and date
// falls under this budget's category and date filter.
func (b *Budget) Matches(category string, date time.Time) bool {
	if len(b.Categories) > 0 {
		found := false
		for _, c := range b.Categories {
			if c == category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if b.StartDate != nil && date.Before(*b.StartDate) {
		return false
	}
	if b.EndDate != nil && date.After(*b.EndDate) {
		return false
	}
	return true
}

// Alert is a budget threshold notice. At most one undismissed alert exists
// per (UserID, BudgetID).
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BudgetID  string    `json:"budgetId"`
	Message   string    `json:"message"`
	Dismissed bool      `json:"dismissed"`
	CreatedAt time.Time `json:"createdAt"`
}

// SpendFilter restricts a spending sum to one user's transactions.
type SpendFilter struct {
	UserID     string
	Categories []string
	StartDate  *time.Time
	EndDate    *time.Time
}

// FilterFor builds the spend filter for a budget.
func FilterFor(b *Budget) SpendFilter {
	return SpendFilter{
		UserID:     b.UserID,
		Categories: b.Categories,
		StartDate:  b.StartDate,
		EndDate:    b.EndDate,
	}
}

// BudgetUsage reports how much of a budget has been used.
type BudgetUsage struct {
	Budget      *Budget         `json:"budget"`
	TotalSpent  decimal.Decimal `json:"totalSpent"`
	UsedPercent decimal.Decimal `json:"usedPercent"`
}
