package store

import (
	"context"
	"sort"
	"sync"

	"statement-engine/internal/models"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// MemoryStore is a Repository backed by maps. It is safe for concurrent use.
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	transactions map[int64]*models.TransactionRecord
	hashes       map[int64]map[string]struct{}
	transfers    []*models.TransferLink
	logger       logger.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[int64]*models.TransactionRecord),
		hashes:       make(map[int64]map[string]struct{}),
		logger:       logger.WithComponent("memory_store"),
	}
}

// ListTransactions returns copies of the stored records ordered by date and id
func (s *MemoryStore) ListTransactions(ctx context.Context, accountIDs ...int64) ([]*models.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "list transactions", err)
	}

	filter := make(map[int64]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		filter[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TransactionRecord, 0, len(s.transactions))
	for _, rec := range s.transactions {
		if len(filter) > 0 {
			if _, ok := filter[rec.AccountID]; !ok {
				continue
			}
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetTransaction returns a copy of one record
func (s *MemoryStore) GetTransaction(ctx context.Context, id int64) (*models.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "get transaction", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.transactions[id]
	if !ok {
		return nil, errors.NotFoundError("transaction", id)
	}
	return copyRecord(rec), nil
}

// Add stores fully built records, assigning ids to records without one.
// It is used to seed snapshots.
func (s *MemoryStore) Add(records ...*models.TransactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		cp := copyRecord(rec)
		if cp.ID == 0 {
			s.nextID++
			cp.ID = s.nextID
		} else if cp.ID > s.nextID {
			s.nextID = cp.ID
		}
		s.transactions[cp.ID] = cp
		if cp.Hash != "" {
			s.accountHashes(cp.AccountID)[cp.Hash] = struct{}{}
		}
	}
}

// SaveTransactions converts rows into records of accountID. Rows whose hash
// is already stored for the account are skipped, so re-saving a batch is a
// no-op.
func (s *MemoryStore) SaveTransactions(ctx context.Context, accountID int64, rows []models.NormalizedRow) ([]*models.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "save transactions", err)
	}
	if accountID == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", accountID, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	known := s.accountHashes(accountID)
	saved := make([]*models.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		if row.Hash != "" {
			if _, dup := known[row.Hash]; dup {
				continue
			}
		}
		rec, err := row.ToRecord(s.nextID+1, accountID)
		if err != nil {
			return saved, errors.ValidationError(errors.CodeInvalidData, "row", row.Line, err)
		}
		s.nextID++
		s.transactions[rec.ID] = rec
		if rec.Hash != "" {
			known[rec.Hash] = struct{}{}
		}
		saved = append(saved, copyRecord(rec))
	}

	s.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"rows":       len(rows),
		"saved":      len(saved),
	}).Debug("Saved transactions")
	return saved, nil
}

// KnownHashes returns a copy of the hashes stored for accountID
func (s *MemoryStore) KnownHashes(ctx context.Context, accountID int64) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "known hashes", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.hashes[accountID]))
	for h := range s.hashes[accountID] {
		out[h] = struct{}{}
	}
	return out, nil
}

// SetCategory assigns categoryID to a transaction
func (s *MemoryStore) SetCategory(ctx context.Context, transactionID, categoryID int64) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "set category", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transactions[transactionID]
	if !ok {
		return errors.NotFoundError("transaction", transactionID)
	}
	id := categoryID
	rec.CategoryID = &id
	return nil
}

// SaveTransfer stores a link. Both transactions must exist.
func (s *MemoryStore) SaveTransfer(ctx context.Context, link *models.TransferLink) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "save transfer", err)
	}
	if link == nil {
		return errors.ValidationError(errors.CodeInvalidTransfer, "link", nil, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []int64{link.FromTransactionID, link.ToTransactionID} {
		if _, ok := s.transactions[id]; !ok {
			return errors.NotFoundError("transaction", id)
		}
	}
	cp := *link
	s.transfers = append(s.transfers, &cp)
	return nil
}

// ListTransfers returns copies of all stored links in insertion order
func (s *MemoryStore) ListTransfers(ctx context.Context) ([]*models.TransferLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "list transfers", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TransferLink, len(s.transfers))
	for i, l := range s.transfers {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) accountHashes(accountID int64) map[string]struct{} {
	set, ok := s.hashes[accountID]
	if !ok {
		set = make(map[string]struct{})
		s.hashes[accountID] = set
	}
	return set
}

func copyRecord(rec *models.TransactionRecord) *models.TransactionRecord {
	cp := *rec
	if rec.CategoryID != nil {
		id := *rec.CategoryID
		cp.CategoryID = &id
	}
	if rec.RawFields != nil {
		cp.RawFields = make(map[string]string, len(rec.RawFields))
		for k, v := range rec.RawFields {
			cp.RawFields[k] = v
		}
	}
	return &cp
}
