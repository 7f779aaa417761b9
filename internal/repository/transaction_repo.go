package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// TransactionRepository serves an owner's audit records. Records are written
// only through LedgerRepository.
type TransactionRepository interface {
	ListByUser(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	GetByReference(ctx context.Context, userID, reference string) (*domain.Transaction, error)
}

type transactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionRepo(db *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{db: db}
}

const transactionColumns = `
		id, user_id, account_number, type, amount, currency, description,
		recipient_name, recipient_account, recipient_bank, status, reference,
		balance_after, category, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.AccountNumber, &t.Type, &t.Amount, &t.Currency, &t.Description,
		&t.RecipientName, &t.RecipientAccount, &t.RecipientBank, &t.Status, &t.Reference,
		&t.BalanceAfter, &t.Category, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &t, nil
}

// ListByUser returns the owner's records newest first.
func (r *transactionRepo) ListByUser(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `SELECT`+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, filter.UserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// GetByReference only returns records owned by userID.
func (r *transactionRepo) GetByReference(ctx context.Context, userID, reference string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT`+transactionColumns+`
		FROM transactions
		WHERE reference = $1 AND user_id = $2`, reference, userID))
}
