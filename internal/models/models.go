package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical ISO 8601 date layout used for normalized rows
const DateLayout = "2006-01-02"

// Canonical field names produced by header mapping
const (
	FieldDate      = "date"
	FieldAmount    = "amount"
	FieldRecipient = "recipient"
	FieldPurpose   = "purpose"
	FieldCurrency  = "currency"
)

// TransactionRecord is a persisted, normalized transaction of one account
type TransactionRecord struct {
	ID         int64             `json:"id" csv:"id"`
	AccountID  int64             `json:"accountId" csv:"account_id"`
	Date       time.Time         `json:"date" csv:"date"`
	Amount     decimal.Decimal   `json:"amount" csv:"amount"`
	Recipient  string            `json:"recipient" csv:"recipient"`
	Purpose    string            `json:"purpose" csv:"purpose"`
	Currency   string            `json:"currency" csv:"currency"`
	CategoryID *int64            `json:"categoryId,omitempty" csv:"-"`
	Hash       string            `json:"hash,omitempty" csv:"hash"`
	RawFields  map[string]string `json:"rawFields,omitempty" csv:"-"`
}

// NewTransactionRecord creates a record with a date-only timestamp
func NewTransactionRecord(id, accountID int64, date time.Time, amount decimal.Decimal, recipient, purpose string) *TransactionRecord {
	return &TransactionRecord{
		ID:        id,
		AccountID: accountID,
		Date:      DateOnly(date),
		Amount:    amount,
		Recipient: recipient,
		Purpose:   purpose,
	}
}

// Validate performs basic validation on the record
func (t *TransactionRecord) Validate() error {
	if t.AccountID == 0 {
		return fmt.Errorf("account ID cannot be zero")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	return nil
}

// IsOutflow returns true for money leaving the account
func (t *TransactionRecord) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// IsInflow returns true for money entering the account
func (t *TransactionRecord) IsInflow() bool {
	return t.Amount.IsPositive()
}

// AbsoluteAmount returns the absolute value of the amount
func (t *TransactionRecord) AbsoluteAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// Text joins recipient and purpose, the text that category rules and
// similarity scoring look at
func (t *TransactionRecord) Text() string {
	return strings.TrimSpace(t.Recipient + " " + t.Purpose)
}

// HasCategory reports whether a category is assigned
func (t *TransactionRecord) HasCategory() bool {
	return t.CategoryID != nil
}

// String returns a string representation of the record
func (t *TransactionRecord) String() string {
	return fmt.Sprintf("Transaction{ID: %d, Account: %d, Date: %s, Amount: %s, Recipient: %q}",
		t.ID, t.AccountID, t.Date.Format(DateLayout), t.Amount.StringFixed(2), t.Recipient)
}

// MarshalJSON renders the amount with two decimals and the date as ISO date
func (t *TransactionRecord) MarshalJSON() ([]byte, error) {
	type Alias TransactionRecord
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: t.Amount.StringFixed(2),
		Date:   t.Date.Format(DateLayout),
		Alias:  (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for TransactionRecord
func (t *TransactionRecord) UnmarshalJSON(data []byte) error {
	type Alias TransactionRecord
	aux := &struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.Date, err = time.Parse(DateLayout, aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// NormalizedRow is one parsed statement row, ready to be persisted
type NormalizedRow struct {
	Line        int               `json:"line" csv:"line"`
	Date        string            `json:"date" csv:"date"`
	Amount      string            `json:"amount" csv:"amount"`
	Recipient   string            `json:"recipient" csv:"recipient"`
	Purpose     string            `json:"purpose" csv:"purpose"`
	Currency    string            `json:"currency,omitempty" csv:"currency"`
	Hash        string            `json:"hash" csv:"hash"`
	IsDuplicate bool              `json:"isDuplicate" csv:"duplicate"`
	Raw         map[string]string `json:"raw,omitempty" csv:"-"`
}

// ToRecord converts the row into a TransactionRecord of accountID. The row is
// expected to carry canonical field text.
func (r NormalizedRow) ToRecord(id, accountID int64) (*TransactionRecord, error) {
	date, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return nil, fmt.Errorf("row %d: invalid normalized date %q: %w", r.Line, r.Date, err)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("row %d: invalid normalized amount %q: %w", r.Line, r.Amount, err)
	}
	rec := NewTransactionRecord(id, accountID, date, amount, r.Recipient, r.Purpose)
	rec.Currency = r.Currency
	rec.Hash = r.Hash
	rec.RawFields = r.Raw
	return rec, nil
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b
func DaysBetween(a, b time.Time) int {
	diff := DateOnly(a).Sub(DateOnly(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
