package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"statement-engine/pkg/errors"
)

// TransferLink records that an outflow in one account and an inflow in
// another are the same movement of money
type TransferLink struct {
	ID                string          `json:"id" csv:"id"`
	FromTransactionID int64           `json:"fromTransactionId" csv:"from_transaction_id"`
	ToTransactionID   int64           `json:"toTransactionId" csv:"to_transaction_id"`
	Amount            decimal.Decimal `json:"amount" csv:"amount"`
	TransferDate      time.Time       `json:"transferDate" csv:"transfer_date"`
	IsAutoDetected    bool            `json:"isAutoDetected" csv:"auto_detected"`
	ConfidenceScore   float64         `json:"confidenceScore" csv:"confidence"`
	Notes             string          `json:"notes,omitempty" csv:"notes"`
	CreatedAt         time.Time       `json:"createdAt" csv:"-"`
}

// NewTransferLink validates the pair and builds a link. The amount is the
// absolute outflow amount and the transfer date is the outflow date.
func NewTransferLink(from, to *TransactionRecord, autoDetected bool, confidence float64, notes string) (*TransferLink, error) {
	if from == nil || to == nil {
		return nil, errors.ValidationError(errors.CodeInvalidTransfer, "transactions", "nil transaction", nil)
	}
	if !from.IsOutflow() {
		return nil, errors.ValidationError(errors.CodeInvalidTransfer, "from_amount", from.Amount.StringFixed(2), nil).
			WithContext("transaction_id", from.ID)
	}
	if !to.IsInflow() {
		return nil, errors.ValidationError(errors.CodeInvalidTransfer, "to_amount", to.Amount.StringFixed(2), nil).
			WithContext("transaction_id", to.ID)
	}
	if from.AccountID == to.AccountID {
		return nil, errors.ValidationError(errors.CodeInvalidTransfer, "account", from.AccountID, nil)
	}
	if confidence < 0 || confidence > 1 {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "confidence_score", confidence, nil)
	}

	return &TransferLink{
		ID:                uuid.NewString(),
		FromTransactionID: from.ID,
		ToTransactionID:   to.ID,
		Amount:            from.AbsoluteAmount(),
		TransferDate:      DateOnly(from.Date),
		IsAutoDetected:    autoDetected,
		ConfidenceScore:   confidence,
		Notes:             notes,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// Involves reports whether the link references transaction id
func (l *TransferLink) Involves(id int64) bool {
	return l.FromTransactionID == id || l.ToTransactionID == id
}

// String returns a string representation of the link
func (l *TransferLink) String() string {
	return fmt.Sprintf("Transfer{%d -> %d, Amount: %s, Date: %s, Confidence: %.2f}",
		l.FromTransactionID, l.ToTransactionID, l.Amount.StringFixed(2), l.TransferDate.Format(DateLayout), l.ConfidenceScore)
}

// TransferredIDs returns the set of transaction ids covered by links
func TransferredIDs(links []*TransferLink) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(links)*2)
	for _, l := range links {
		ids[l.FromTransactionID] = struct{}{}
		ids[l.ToTransactionID] = struct{}{}
	}
	return ids
}
