package matcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statement-engine/internal/models"
	"statement-engine/pkg/errors"
)

type fakeStore struct {
	records  map[int64]*models.TransactionRecord
	saved    []*models.TransferLink
	failRead error
	failSave error
}

func newFakeStore(records ...*models.TransactionRecord) *fakeStore {
	s := &fakeStore{records: make(map[int64]*models.TransactionRecord)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeStore) GetTransaction(_ context.Context, id int64) (*models.TransactionRecord, error) {
	if s.failRead != nil {
		return nil, s.failRead
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, errors.NotFoundError("transaction", id)
	}
	return rec, nil
}

func (s *fakeStore) SaveTransfer(_ context.Context, link *models.TransferLink) error {
	if s.failSave != nil {
		return s.failSave
	}
	s.saved = append(s.saved, link)
	return nil
}

func TestTransferService_CreateTransfer(t *testing.T) {
	store := newFakeStore(
		record(1, 1, "2025-01-01", "-50", "A", ""),
		record(2, 2, "2025-01-02", "50", "A", ""),
		record(3, 2, "2025-01-02", "-50", "", ""),
		record(4, 1, "2025-01-02", "50", "", ""),
	)
	service := NewTransferService(store, store)
	ctx := context.Background()

	link, err := service.CreateTransfer(ctx, 1, 2, false, 1.0, "manual")
	require.NoError(t, err)
	assert.True(t, link.Amount.Equal(decimal.NewFromInt(50)), "got %s", link.Amount)
	assert.False(t, link.IsAutoDetected)
	assert.Equal(t, "manual", link.Notes)
	assert.Len(t, store.saved, 1, "link is persisted")

	tests := []struct {
		name       string
		from, to   int64
		confidence float64
		check      func(error) bool
	}{
		{"reversed direction", 2, 1, 1.0, errors.IsValidation},
		{"both outflows", 1, 3, 1.0, errors.IsValidation},
		{"same account", 1, 4, 1.0, errors.IsValidation},
		{"confidence out of range", 1, 2, 1.5, errors.IsValidation},
		{"unknown from", 99, 2, 1.0, errors.IsNotFound},
		{"unknown to", 1, 99, 1.0, errors.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateTransfer(ctx, tt.from, tt.to, false, tt.confidence, "")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}

	assert.Len(t, store.saved, 1, "failed transfers are not persisted")
}

func TestTransferService_StorageErrors(t *testing.T) {
	store := newFakeStore(
		record(1, 1, "2025-01-01", "-50", "", ""),
		record(2, 2, "2025-01-01", "50", "", ""),
	)
	service := NewTransferService(store, store)

	store.failSave = fmt.Errorf("disk full")
	_, err := service.CreateTransfer(context.Background(), 1, 2, true, 0.8, "")
	engineErr, ok := errors.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryStorage, engineErr.Category)

	store.failSave = nil
	store.failRead = fmt.Errorf("connection reset")
	_, err = service.CreateTransfer(context.Background(), 1, 2, true, 0.8, "")
	engineErr, ok = errors.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryStorage, engineErr.Category)
}

func TestTransferService_SaveDetected(t *testing.T) {
	records := []*models.TransactionRecord{
		record(1, 1, "2025-01-01", "-50", "", ""),
		record(2, 2, "2025-01-01", "50", "", ""),
		record(3, 1, "2025-01-05", "-20", "", ""),
		record(4, 2, "2025-01-05", "20", "", ""),
	}
	store := newFakeStore(records...)
	service := NewTransferService(store, store)

	result := NewMatcher(nil).FindTransfers(records, nil)
	saved, err := service.SaveDetected(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)
	assert.Len(t, store.saved, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saved, err = service.SaveDetected(ctx, result)
	assert.Error(t, err, "cancelled before saving")
	assert.Zero(t, saved)
}
