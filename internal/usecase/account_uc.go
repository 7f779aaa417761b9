package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/signature"
	"github.com/King-Austin/securecipher-bankingapi/shared/utils/cache"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"go.uber.org/zap"
)

const (
	verifyAccountNamespace = "verify-account"
	verifyAccountTTL       = 5 * time.Minute

	MessageAccountNotFound = "Account not found"
)

type AccountUsecase struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	resolver     *ResolutionUsecase
	cache        *cache.Cache
	logger       *zap.Logger
}

func NewAccountUsecase(
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	resolver *ResolutionUsecase,
	c *cache.Cache,
	logger *zap.Logger,
) *AccountUsecase {
	return &AccountUsecase{
		accounts:     accounts,
		transactions: transactions,
		resolver:     resolver,
		cache:        c,
		logger:       logger,
	}
}

// VerifyAccount tells a sender whose account a number belongs to. Only hits are
// cached so a freshly opened account is visible at once.
func (uc *AccountUsecase) VerifyAccount(ctx context.Context, accountNumber string) (*domain.AccountVerification, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, xerrors.Field("account_number", "account number is required")
	}

	if raw, err := uc.cache.Get(ctx, verifyAccountNamespace, accountNumber); err == nil {
		var v domain.AccountVerification
		if json.Unmarshal([]byte(raw), &v) == nil {
			return &v, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		uc.logger.Warn("verify-account cache read failed", zap.Error(err))
	}

	res, err := uc.resolver.Resolve(ctx, accountNumber, uc.resolver.BankName())
	if err != nil {
		return nil, err
	}
	if !res.Internal {
		return &domain.AccountVerification{Exists: false, Message: MessageAccountNotFound}, nil
	}

	v := &domain.AccountVerification{
		Exists: true,
		Name:   res.Account.DisplayName(),
		Bank:   uc.resolver.BankName(),
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := uc.cache.Set(ctx, verifyAccountNamespace, accountNumber, raw, verifyAccountTTL); err != nil {
			uc.logger.Warn("verify-account cache write failed", zap.Error(err))
		}
	}
	return v, nil
}

func (uc *AccountUsecase) Profile(ctx context.Context, userID string) (*domain.Account, error) {
	return uc.accounts.GetByUserID(ctx, userID)
}

// PublicKey returns the key on file for userID, empty when none was uploaded.
func (uc *AccountUsecase) PublicKey(ctx context.Context, userID string) (string, error) {
	acc, err := uc.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	return acc.PublicKey, nil
}

// UpdatePublicKey stores a new signing key after checking it is a P-384
// SubjectPublicKeyInfo.
func (uc *AccountUsecase) UpdatePublicKey(ctx context.Context, userID, publicKey string) (*domain.Account, error) {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return nil, xerrors.Field("public_key", "public key is required")
	}
	if _, err := signature.ParsePublicKey(publicKey); err != nil {
		return nil, xerrors.Field("public_key", "public key must be a base64 DER P-384 key")
	}

	acc, err := uc.accounts.UpdatePublicKey(ctx, userID, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to update public key: %w", err)
	}
	return acc, nil
}

func (uc *AccountUsecase) SetPin(ctx context.Context, userID string) (*domain.Account, error) {
	acc, err := uc.accounts.SetPinFlag(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to set pin: %w", err)
	}
	uc.logger.Info("pin set", zap.String("user_id", userID))
	return acc, nil
}

func (uc *AccountUsecase) History(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	return uc.transactions.ListByUser(ctx, filter)
}

func (uc *AccountUsecase) TransactionByReference(ctx context.Context, userID, reference string) (*domain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, xerrors.ErrNotFound
	}
	return uc.transactions.GetByReference(ctx, userID, reference)
}

// Ping reports whether the account store is reachable.
func (uc *AccountUsecase) Ping(ctx context.Context) error {
	return uc.accounts.Ping(ctx)
}
