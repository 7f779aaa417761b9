package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AccountRepository reads and updates customer accounts outside of transfers.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Account, error)
	UpdatePublicKey(ctx context.Context, userID, publicKey string) (*domain.Account, error)
	SetPinFlag(ctx context.Context, userID string) (*domain.Account, error)
	Ping(ctx context.Context) error
}

type accountRepo struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAccountRepo(db *pgxpool.Pool, logger *zap.Logger) AccountRepository {
	return &accountRepo{db: db, logger: logger}
}

const accountColumns = `
		id, user_id, username, first_name, last_name, account_number,
		balance, public_key, pin_set, created_at, updated_at`

const baseSelectAccount = `SELECT` + accountColumns + ` FROM accounts`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.Username, &a.FirstName, &a.LastName, &a.AccountNumber,
		&a.Balance, &a.PublicKey, &a.PinSet, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

func (r *accountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (user_id, username, first_name, last_name, account_number, balance, public_key, pin_set)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.UserID, a.Username, a.FirstName, a.LastName, a.AccountNumber,
		a.Balance, a.PublicKey, a.PinSet,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return xerrors.TranslatePG(err)
	}
	return nil
}

// GetByAccountNumber is a plain read; transfers re-read under lock.
func (r *accountRepo) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, baseSelectAccount+` WHERE account_number = $1`, accountNumber))
}

func (r *accountRepo) GetByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, baseSelectAccount+` WHERE user_id = $1`, userID))
}

func (r *accountRepo) UpdatePublicKey(ctx context.Context, userID, publicKey string) (*domain.Account, error) {
	query := `UPDATE accounts SET public_key = $2, updated_at = NOW() WHERE user_id = $1 RETURNING` + accountColumns
	a, err := scanAccount(r.db.QueryRow(ctx, query, userID, publicKey))
	if err != nil {
		return nil, err
	}
	r.logger.Info("public key updated", zap.String("user_id", userID), zap.String("account_number", a.AccountNumber))
	return a, nil
}

func (r *accountRepo) SetPinFlag(ctx context.Context, userID string) (*domain.Account, error) {
	query := `UPDATE accounts SET pin_set = TRUE, updated_at = NOW() WHERE user_id = $1 RETURNING` + accountColumns
	return scanAccount(r.db.QueryRow(ctx, query, userID))
}

func (r *accountRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
