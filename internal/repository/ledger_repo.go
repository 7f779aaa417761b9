package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerTx is the set of writes available inside one atomic transfer unit.
type LedgerTx interface {
	// LockAccounts takes row locks in ascending account-number order and
	// returns the locked rows keyed by account number. Unknown numbers are
	// simply absent from the map.
	LockAccounts(ctx context.Context, accountNumbers ...string) (map[string]*domain.Account, error)
	UpdateBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
}

// LedgerRepository runs fn in a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type LedgerRepository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

type ledgerRepo struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLedgerRepo(db *pgxpool.Pool, logger *zap.Logger) LedgerRepository {
	return &ledgerRepo{db: db, logger: logger}
}

func (r *ledgerRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func (r *ledgerRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgLedgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("failed to commit ledger transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", xerrors.TranslatePG(err))
	}
	return nil
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (l *pgLedgerTx) LockAccounts(ctx context.Context, accountNumbers ...string) (map[string]*domain.Account, error) {
	ordered := make([]string, 0, len(accountNumbers))
	seen := make(map[string]bool, len(accountNumbers))
	for _, n := range accountNumbers {
		if !seen[n] {
			seen[n] = true
			ordered = append(ordered, n)
		}
	}
	sort.Strings(ordered)

	locked := make(map[string]*domain.Account, len(ordered))
	// one statement per row keeps the lock order deterministic
	for _, n := range ordered {
		a, err := scanAccount(l.tx.QueryRow(ctx, baseSelectAccount+` WHERE account_number = $1 FOR UPDATE`, n))
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to lock account %s: %w", n, err)
		}
		locked[n] = a
	}
	return locked, nil
}

func (l *pgLedgerTx) UpdateBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	tag, err := l.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`,
		accountID, balance,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", xerrors.TranslatePG(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update balance of account %d: %w", accountID, xerrors.ErrNotFound)
	}
	return nil
}

func (l *pgLedgerTx) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, account_number, type, amount, currency, description,
			recipient_name, recipient_account, recipient_bank, status, reference,
			balance_after, category, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := l.tx.Exec(ctx, query,
		t.ID, t.UserID, t.AccountNumber, string(t.Type), t.Amount, t.Currency, t.Description,
		t.RecipientName, t.RecipientAccount, t.RecipientBank, string(t.Status), t.Reference,
		t.BalanceAfter, t.Category, t.CreatedAt,
	)
	if err != nil {
		return xerrors.TranslatePG(err)
	}
	return nil
}
