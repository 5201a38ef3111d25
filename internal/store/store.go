// Package store holds the persistence collaborators the engine reads from
// and writes to. The engine itself never owns state; callers pass snapshots
// loaded through a Repository.
package store

import (
	"context"

	"statement-engine/internal/models"
)

// Repository is the persistence contract used by the pipeline and the CLI.
// Lookups of unknown ids return a not-found EngineError.
type Repository interface {
	ListTransactions(ctx context.Context, accountIDs ...int64) ([]*models.TransactionRecord, error)
	GetTransaction(ctx context.Context, id int64) (*models.TransactionRecord, error)
	SaveTransactions(ctx context.Context, accountID int64, rows []models.NormalizedRow) ([]*models.TransactionRecord, error)
	KnownHashes(ctx context.Context, accountID int64) (map[string]struct{}, error)
	SetCategory(ctx context.Context, transactionID, categoryID int64) error
	SaveTransfer(ctx context.Context, link *models.TransferLink) error
	ListTransfers(ctx context.Context) ([]*models.TransferLink, error)
	Close() error
}

// Snapshot loads all transactions of the given accounts (all accounts when
// none are given) together with the existing transfer links.
func Snapshot(ctx context.Context, repo Repository, accountIDs ...int64) ([]*models.TransactionRecord, []*models.TransferLink, error) {
	records, err := repo.ListTransactions(ctx, accountIDs...)
	if err != nil {
		return nil, nil, err
	}
	links, err := repo.ListTransfers(ctx)
	if err != nil {
		return nil, nil, err
	}
	return records, links, nil
}
