package matcher

import (
	"context"

	"statement-engine/internal/models"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// TransactionReader loads transactions by id. Implementations return a
// not-found error for unknown ids.
type TransactionReader interface {
	GetTransaction(ctx context.Context, id int64) (*models.TransactionRecord, error)
}

// TransferWriter persists transfer links
type TransferWriter interface {
	SaveTransfer(ctx context.Context, link *models.TransferLink) error
}

// TransferService creates transfer links against a persistence collaborator.
// It does not check whether either transaction is already linked; callers
// keep that index (see models.TransferredIDs).
type TransferService struct {
	reader TransactionReader
	writer TransferWriter
	logger logger.Logger
}

// NewTransferService creates a transfer service
func NewTransferService(reader TransactionReader, writer TransferWriter) *TransferService {
	return &TransferService{
		reader: reader,
		writer: writer,
		logger: logger.WithComponent("transfer_service"),
	}
}

// CreateTransfer links transaction fromID (an outflow) to toID (an inflow).
// Unknown ids yield a not-found error; sign, account and confidence
// violations yield a validation error.
func (s *TransferService) CreateTransfer(ctx context.Context, fromID, toID int64, autoDetected bool, confidence float64, notes string) (*models.TransferLink, error) {
	from, err := s.load(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.load(ctx, toID)
	if err != nil {
		return nil, err
	}

	link, err := models.NewTransferLink(from, to, autoDetected, confidence, notes)
	if err != nil {
		return nil, err
	}

	if err := s.writer.SaveTransfer(ctx, link); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "failed to save transfer").
			WithContext("from", fromID).
			WithContext("to", toID)
	}

	s.logger.WithFields(logger.Fields{
		"transfer_id": link.ID,
		"from":        fromID,
		"to":          toID,
		"amount":      link.Amount.StringFixed(2),
		"auto":        autoDetected,
	}).Debug("Created transfer")

	return link, nil
}

// SaveDetected persists the links of a detection run and returns how many
// were written before the first failure
func (s *TransferService) SaveDetected(ctx context.Context, result *DetectionResult) (int, error) {
	saved := 0
	for _, link := range result.Links {
		if err := ctx.Err(); err != nil {
			return saved, errors.InternalError(errors.CodeCancelled, "saving transfers", err)
		}
		if err := s.writer.SaveTransfer(ctx, link); err != nil {
			return saved, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "failed to save transfer").
				WithContext("transfer_id", link.ID)
		}
		saved++
	}
	return saved, nil
}

func (s *TransferService) load(ctx context.Context, id int64) (*models.TransactionRecord, error) {
	rec, err := s.reader.GetTransaction(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "failed to load transaction").
			WithContext("transaction_id", id)
	}
	if rec == nil {
		return nil, errors.NotFoundError("transaction", id)
	}
	return rec, nil
}
