package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecurringSeries describes a detected repeating payment to one payee
type RecurringSeries struct {
	RecipientKey        string          `json:"recipientKey" csv:"recipient"`
	AccountID           int64           `json:"accountId,omitempty" csv:"account_id"`
	AverageAmount       decimal.Decimal `json:"averageAmount" csv:"average_amount"`
	AverageIntervalDays float64         `json:"averageIntervalDays" csv:"average_interval_days"`
	IntervalDays        int             `json:"intervalDays" csv:"interval_days"`
	FirstOccurrence     time.Time       `json:"firstOccurrence" csv:"first_occurrence"`
	LastOccurrence      time.Time       `json:"lastOccurrence" csv:"last_occurrence"`
	OccurrenceCount     int             `json:"occurrenceCount" csv:"occurrences"`
	NextExpectedDate    time.Time       `json:"nextExpectedDate" csv:"next_expected"`
	ConfidenceScore     float64         `json:"confidenceScore" csv:"confidence"`
	IsActive            bool            `json:"isActive" csv:"active"`
	TransactionIDs      []int64         `json:"transactionIds" csv:"-"`
}

// Frequency names the canonical interval of the series
func (s *RecurringSeries) Frequency() string {
	switch s.IntervalDays {
	case 7:
		return "weekly"
	case 14:
		return "biweekly"
	case 30:
		return "monthly"
	case 90:
		return "quarterly"
	case 365:
		return "yearly"
	default:
		return fmt.Sprintf("every %d days", s.IntervalDays)
	}
}

// String returns a string representation of the series
func (s *RecurringSeries) String() string {
	return fmt.Sprintf("Recurring{%q %s, %s x%d, next %s, confidence %.2f}",
		s.RecipientKey, s.Frequency(), s.AverageAmount.StringFixed(2), s.OccurrenceCount,
		s.NextExpectedDate.Format(DateLayout), s.ConfidenceScore)
}
