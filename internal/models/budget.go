package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a spending limit for one category over a date window
type Budget struct {
	CategoryID int64           `json:"categoryId" yaml:"category_id"`
	Amount     decimal.Decimal `json:"amount" yaml:"amount"`
	StartDate  time.Time       `json:"startDate" yaml:"start_date"`
	EndDate    time.Time       `json:"endDate" yaml:"end_date"`
}

// Validate checks the budget window and amount
func (b *Budget) Validate() error {
	if b.Amount.IsNegative() {
		return fmt.Errorf("budget amount cannot be negative: %s", b.Amount.String())
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return fmt.Errorf("budget window requires start and end dates")
	}
	if b.EndDate.Before(b.StartDate) {
		return fmt.Errorf("budget end date %s is before start date %s",
			b.EndDate.Format(DateLayout), b.StartDate.Format(DateLayout))
	}
	return nil
}

// Contains reports whether date falls inside the budget window, inclusive
func (b *Budget) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(b.StartDate)) && !d.After(DateOnly(b.EndDate))
}

// BudgetProgress is the spending state of a budget at a point in time
type BudgetProgress struct {
	CategoryID     int64           `json:"categoryId" csv:"category_id"`
	Budgeted       decimal.Decimal `json:"budgeted" csv:"budgeted"`
	Spent          decimal.Decimal `json:"spent" csv:"spent"`
	Remaining      decimal.Decimal `json:"remaining" csv:"remaining"`
	Percentage     float64         `json:"percentage" csv:"percentage"`
	IsExceeded     bool            `json:"isExceeded" csv:"exceeded"`
	ProjectedTotal decimal.Decimal `json:"projectedTotal" csv:"projected_total"`
	DaysElapsed    int             `json:"daysElapsed" csv:"days_elapsed"`
	DaysTotal      int             `json:"daysTotal" csv:"days_total"`
}
