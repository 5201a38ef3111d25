// Package budget computes spending progress of category budgets. Transfers
// between own accounts are not spending and are excluded.
package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"statement-engine/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ExcludedIDs returns the ids of all transactions that are part of a transfer
func ExcludedIDs(links []*models.TransferLink) map[int64]struct{} {
	return models.TransferredIDs(links)
}

// Spent sums the absolute outflows of the budget's category inside its
// window, skipping excluded ids
func Spent(b *models.Budget, records []*models.TransactionRecord, excluded map[int64]struct{}) decimal.Decimal {
	spent := decimal.Zero
	for _, rec := range records {
		if rec == nil || rec.CategoryID == nil || *rec.CategoryID != b.CategoryID {
			continue
		}
		if !rec.IsOutflow() || !b.Contains(rec.Date) {
			continue
		}
		if _, skip := excluded[rec.ID]; skip {
			continue
		}
		spent = spent.Add(rec.AbsoluteAmount())
	}
	return spent
}

// Calculate returns the progress of b as of today. The projection
// extrapolates the daily spend rate over the elapsed days to the whole
// window.
func Calculate(b *models.Budget, records []*models.TransactionRecord, excluded map[int64]struct{}, today time.Time) models.BudgetProgress {
	spent := Spent(b, records, excluded)

	total := models.DaysBetween(b.StartDate, b.EndDate) + 1
	elapsed := 0
	day := models.DateOnly(today)
	switch {
	case day.Before(models.DateOnly(b.StartDate)):
		elapsed = 0
	case day.After(models.DateOnly(b.EndDate)):
		elapsed = total
	default:
		elapsed = models.DaysBetween(b.StartDate, day) + 1
	}

	progress := models.BudgetProgress{
		CategoryID:     b.CategoryID,
		Budgeted:       b.Amount,
		Spent:          spent,
		Remaining:      b.Amount.Sub(spent),
		IsExceeded:     spent.GreaterThan(b.Amount),
		ProjectedTotal: spent,
		DaysElapsed:    elapsed,
		DaysTotal:      total,
	}

	if !b.Amount.IsZero() {
		progress.Percentage = spent.Div(b.Amount).Mul(hundred).InexactFloat64()
	}
	if elapsed > 0 {
		progress.ProjectedTotal = spent.Div(decimal.NewFromInt(int64(elapsed))).
			Mul(decimal.NewFromInt(int64(total))).
			Round(2)
	}

	return progress
}

// CalculateAll computes progress for every budget, excluding all
// transactions referenced by links
func CalculateAll(budgets []*models.Budget, records []*models.TransactionRecord, links []*models.TransferLink, today time.Time) []models.BudgetProgress {
	excluded := ExcludedIDs(links)
	result := make([]models.BudgetProgress, 0, len(budgets))
	for _, b := range budgets {
		result = append(result, Calculate(b, records, excluded, today))
	}
	return result
}
