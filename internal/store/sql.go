package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"statement-engine/internal/models"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// DSNEnvVar names the environment variable holding the MySQL DSN
const DSNEnvVar = "LEDGER_DATABASE_DSN"

// DBTX is the subset of *sql.DB and *sql.Tx used by SQLStore
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Schema creates the tables SQLStore expects
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS statement_transactions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		account_id BIGINT NOT NULL,
		booking_date DATE NOT NULL,
		amount DECIMAL(15,2) NOT NULL,
		recipient VARCHAR(255) NOT NULL DEFAULT '',
		purpose TEXT,
		currency CHAR(3) NOT NULL DEFAULT '',
		category_id BIGINT NULL,
		hash CHAR(64) NOT NULL,
		UNIQUE KEY uq_account_hash (account_id, hash)
	)`,
	`CREATE TABLE IF NOT EXISTS transfer_links (
		id CHAR(36) PRIMARY KEY,
		from_transaction_id BIGINT NOT NULL,
		to_transaction_id BIGINT NOT NULL,
		amount DECIMAL(15,2) NOT NULL,
		transfer_date DATE NOT NULL,
		is_auto_detected BOOLEAN NOT NULL,
		confidence_score DOUBLE NOT NULL,
		notes TEXT,
		created_at DATETIME NOT NULL
	)`,
}

const transactionColumns = "id, account_id, booking_date, amount, recipient, purpose, currency, category_id, hash"

// SQLStore is a Repository backed by MySQL
type SQLStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, logger: logger.WithComponent("sql_store")}
}

// Open connects to MySQL using dsn. parseTime is forced on so DATE columns
// scan into time.Time.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "database.dsn", "<redacted>", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, errors.StorageError(errors.CodeConnectionFailed, "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeConnectionFailed, "ping", err).
			WithContext("address", cfg.Addr)
	}

	logger.WithComponent("sql_store").WithFields(logger.Fields{
		"address":  cfg.Addr,
		"database": cfg.DBName,
	}).Info("Connected to database")
	return NewSQLStore(db), nil
}

// OpenFromEnv loads envFiles (a missing file is ignored) and connects using
// the DSN in LEDGER_DATABASE_DSN.
func OpenFromEnv(ctx context.Context, envFiles ...string) (*SQLStore, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFilePermission, f, err)
		}
	}

	dsn := os.Getenv(DSNEnvVar)
	if dsn == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, DSNEnvVar, "", nil)
	}
	return Open(ctx, dsn)
}

// EnsureSchema creates missing tables
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	return logger.TimedOperation("ensure_schema", s.logger, func() error {
		for _, stmt := range Schema {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return errors.StorageError(errors.CodeQueryFailed, "ensure schema", err)
			}
		}
		return nil
	})
}

// ListTransactions returns records of the given accounts, or all records
func (s *SQLStore) ListTransactions(ctx context.Context, accountIDs ...int64) ([]*models.TransactionRecord, error) {
	query := "SELECT " + transactionColumns + " FROM statement_transactions"
	args := make([]interface{}, 0, len(accountIDs))
	if len(accountIDs) > 0 {
		query += " WHERE account_id IN (" + placeholders(len(accountIDs)) + ")"
		for _, id := range accountIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY booking_date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list transactions", err)
	}
	defer rows.Close()

	var out []*models.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list transactions: scan", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list transactions: rows", err)
	}
	return out, nil
}

// GetTransaction returns one record
func (s *SQLStore) GetTransaction(ctx context.Context, id int64) (*models.TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM statement_transactions WHERE id = ?", id)
	rec, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundError("transaction", id)
		}
		return nil, errors.StorageError(errors.CodeQueryFailed, "get transaction", err)
	}
	return rec, nil
}

// SaveTransactions inserts rows in one transaction. Rows whose hash already
// exists for the account are ignored by the unique key.
func (s *SQLStore) SaveTransactions(ctx context.Context, accountID int64, rows []models.NormalizedRow) ([]*models.TransactionRecord, error) {
	if accountID == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", accountID, nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.StorageError(errors.CodeConnectionFailed, "save transactions: begin", err)
	}
	defer tx.Rollback()

	saved, err := insertRows(ctx, tx, accountID, rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "save transactions: commit", err)
	}

	s.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"rows":       len(rows),
		"saved":      len(saved),
	}).Debug("Saved transactions")
	return saved, nil
}

func insertRows(ctx context.Context, db DBTX, accountID int64, rows []models.NormalizedRow) ([]*models.TransactionRecord, error) {
	const query = `INSERT IGNORE INTO statement_transactions
		(account_id, booking_date, amount, recipient, purpose, currency, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	saved := make([]*models.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.ToRecord(0, accountID)
		if err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidData, "row", row.Line, err)
		}
		res, err := db.ExecContext(ctx, query,
			accountID, rec.Date, rec.Amount.StringFixed(2), rec.Recipient, rec.Purpose, rec.Currency, rec.Hash)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "save transactions: insert", err).
				WithContext("line", row.Line)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "save transactions: last insert id", err)
		}
		rec.ID = id
		saved = append(saved, rec)
	}
	return saved, nil
}

// KnownHashes returns the hashes stored for accountID
func (s *SQLStore) KnownHashes(ctx context.Context, accountID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT hash FROM statement_transactions WHERE account_id = ?", accountID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "known hashes", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "known hashes: scan", err)
		}
		out[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "known hashes: rows", err)
	}
	return out, nil
}

// SetCategory assigns categoryID to a transaction
func (s *SQLStore) SetCategory(ctx context.Context, transactionID, categoryID int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE statement_transactions SET category_id = ? WHERE id = ?", categoryID, transactionID)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "set category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "set category", err)
	}
	if n == 0 {
		// MySQL reports 0 for an unchanged row too
		if _, err := s.GetTransaction(ctx, transactionID); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransfer inserts a link
func (s *SQLStore) SaveTransfer(ctx context.Context, link *models.TransferLink) error {
	if link == nil {
		return errors.ValidationError(errors.CodeInvalidTransfer, "link", nil, nil)
	}
	const query = `INSERT INTO transfer_links
		(id, from_transaction_id, to_transaction_id, amount, transfer_date, is_auto_detected, confidence_score, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.FromTransactionID, link.ToTransactionID, link.Amount.StringFixed(2),
		link.TransferDate, link.IsAutoDetected, link.ConfidenceScore, link.Notes, link.CreatedAt)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "save transfer", err).
			WithContext("transfer_id", link.ID)
	}
	return nil
}

// ListTransfers returns all links ordered by creation time
func (s *SQLStore) ListTransfers(ctx context.Context) ([]*models.TransferLink, error) {
	const query = `SELECT id, from_transaction_id, to_transaction_id, amount, transfer_date,
		is_auto_detected, confidence_score, notes, created_at
		FROM transfer_links ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list transfers", err)
	}
	defer rows.Close()

	var out []*models.TransferLink
	for rows.Next() {
		var (
			l      models.TransferLink
			amount string
			notes  sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.FromTransactionID, &l.ToTransactionID, &amount, &l.TransferDate,
			&l.IsAutoDetected, &l.ConfidenceScore, &notes, &l.CreatedAt); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list transfers: scan", err)
		}
		if l.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list transfers: amount", err)
		}
		l.Notes = notes.String
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list transfers: rows", err)
	}
	return out, nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (*models.TransactionRecord, error) {
	var (
		rec      models.TransactionRecord
		amount   string
		purpose  sql.NullString
		category sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.AccountID, &rec.Date, &amount, &rec.Recipient,
		&purpose, &rec.Currency, &category, &rec.Hash); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	rec.Amount = d
	rec.Date = models.DateOnly(rec.Date)
	rec.Purpose = purpose.String
	if category.Valid {
		id := category.Int64
		rec.CategoryID = &id
	}
	return &rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var (
	_ Repository = (*SQLStore)(nil)
	_ Repository = (*MemoryStore)(nil)
)
