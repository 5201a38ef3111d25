package matcher

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"statement-engine/internal/models"
)

// AmountIndex indexes inflow candidates for transfer matching
type AmountIndex struct {
	// ExactAmountIndex maps absolute amounts (two decimals) to inflows
	ExactAmountIndex map[string][]*models.TransactionRecord

	// DateIndex maps date strings (YYYY-MM-DD) to inflows
	DateIndex map[string][]*models.TransactionRecord

	// AccountIndex maps account ids to inflows
	AccountIndex map[int64][]*models.TransactionRecord

	// AllTransactions holds all indexed inflows in input order
	AllTransactions []*models.TransactionRecord
}

// IndexStats provides statistics about index usage and efficiency
type IndexStats struct {
	TotalTransactions int `json:"totalTransactions"`
	UniqueAmounts     int `json:"uniqueAmounts"`
	UniqueDates       int `json:"uniqueDates"`
	UniqueAccounts    int `json:"uniqueAccounts"`
}

// amountKey is the lookup key of an amount; exact to the cent
func amountKey(amount decimal.Decimal) string {
	return amount.Abs().StringFixed(2)
}

// NewAmountIndex indexes the inflows of records whose ids are not in excluded
func NewAmountIndex(records []*models.TransactionRecord, excluded map[int64]struct{}) *AmountIndex {
	index := &AmountIndex{
		ExactAmountIndex: make(map[string][]*models.TransactionRecord),
		DateIndex:        make(map[string][]*models.TransactionRecord),
		AccountIndex:     make(map[int64][]*models.TransactionRecord),
	}

	for _, rec := range records {
		if rec == nil || !rec.IsInflow() {
			continue
		}
		if _, skip := excluded[rec.ID]; skip {
			continue
		}
		index.Add(rec)
	}

	return index
}

// Add indexes a single inflow
func (ai *AmountIndex) Add(rec *models.TransactionRecord) {
	ai.AllTransactions = append(ai.AllTransactions, rec)

	key := amountKey(rec.Amount)
	ai.ExactAmountIndex[key] = append(ai.ExactAmountIndex[key], rec)

	dateKey := rec.Date.Format(models.DateLayout)
	ai.DateIndex[dateKey] = append(ai.DateIndex[dateKey], rec)

	ai.AccountIndex[rec.AccountID] = append(ai.AccountIndex[rec.AccountID], rec)
}

// GetByExactAmount returns inflows with the same absolute amount
func (ai *AmountIndex) GetByExactAmount(amount decimal.Decimal) []*models.TransactionRecord {
	return ai.ExactAmountIndex[amountKey(amount)]
}

// GetByDate returns inflows booked on date
func (ai *AmountIndex) GetByDate(date time.Time) []*models.TransactionRecord {
	return ai.DateIndex[date.Format(models.DateLayout)]
}

// GetByDateRange returns inflows within the date range (inclusive)
func (ai *AmountIndex) GetByDateRange(startDate, endDate time.Time) []*models.TransactionRecord {
	var result []*models.TransactionRecord

	current := models.DateOnly(startDate)
	end := models.DateOnly(endDate)
	for !current.After(end) {
		result = append(result, ai.GetByDate(current)...)
		current = current.AddDate(0, 0, 1)
	}

	return result
}

// largeBucket is the amount bucket size above which Candidates walks the
// date window instead, when the window holds fewer inflows
const largeBucket = 64

// pool returns the inflows Candidates has to check for outflow
func (ai *AmountIndex) pool(outflow *models.TransactionRecord, windowDays int) []*models.TransactionRecord {
	bucket := ai.GetByExactAmount(outflow.Amount)
	if len(bucket) <= largeBucket {
		return bucket
	}

	window := ai.GetByDateRange(outflow.Date.AddDate(0, 0, -windowDays), outflow.Date.AddDate(0, 0, windowDays))
	if len(window) >= len(bucket) {
		return bucket
	}
	key := amountKey(outflow.Amount)
	sameAmount := window[:0:0]
	for _, in := range window {
		if amountKey(in.Amount) == key {
			sameAmount = append(sameAmount, in)
		}
	}
	return sameAmount
}

// Candidates returns inflows that could be the other leg of outflow: same
// absolute amount, another account, within the date window and, when
// required, the same currency. Results are ordered by date distance, then id.
func (ai *AmountIndex) Candidates(outflow *models.TransactionRecord, config *TransferConfig) []*models.TransactionRecord {
	if outflow == nil || !outflow.IsOutflow() {
		return nil
	}
	// every indexed inflow is on the outflow's own account
	if len(ai.AccountIndex[outflow.AccountID]) == len(ai.AllTransactions) {
		return nil
	}

	var candidates []*models.TransactionRecord
	for _, in := range ai.pool(outflow, config.WindowDays) {
		if in.AccountID == outflow.AccountID || in.ID == outflow.ID {
			continue
		}
		if models.DaysBetween(outflow.Date, in.Date) > config.WindowDays {
			continue
		}
		if config.RequireSameCurrency && !sameCurrency(outflow, in) {
			continue
		}
		candidates = append(candidates, in)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := models.DaysBetween(outflow.Date, candidates[i].Date)
		dj := models.DaysBetween(outflow.Date, candidates[j].Date)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates
}

// sameCurrency treats an unknown currency as compatible with any other
func sameCurrency(a, b *models.TransactionRecord) bool {
	return a.Currency == "" || b.Currency == "" || a.Currency == b.Currency
}

// GetIndexStats returns statistics about the index
func (ai *AmountIndex) GetIndexStats() IndexStats {
	return IndexStats{
		TotalTransactions: len(ai.AllTransactions),
		UniqueAmounts:     len(ai.ExactAmountIndex),
		UniqueDates:       len(ai.DateIndex),
		UniqueAccounts:    len(ai.AccountIndex),
	}
}
