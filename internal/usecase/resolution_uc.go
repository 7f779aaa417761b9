package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"
)

const DefaultBankName = "Secure Cipher Bank"

// Resolution classifies a transfer destination.
//
// Internal is set only when the institution names this bank and the account
// exists. LocalBank without Internal means the caller asked for an account of
// ours that does not exist.
type Resolution struct {
	Internal  bool
	LocalBank bool
	Account   *domain.Account
}

type ResolutionUsecase struct {
	accounts repository.AccountRepository
	bankName string
}

func NewResolutionUsecase(accounts repository.AccountRepository, bankName string) *ResolutionUsecase {
	bankName = strings.TrimSpace(bankName)
	if bankName == "" {
		bankName = DefaultBankName
	}
	return &ResolutionUsecase{accounts: accounts, bankName: bankName}
}

func (uc *ResolutionUsecase) BankName() string { return uc.bankName }

// IsLocalBank compares institution names ignoring case and surrounding spaces.
func (uc *ResolutionUsecase) IsLocalBank(institution string) bool {
	return strings.EqualFold(strings.TrimSpace(institution), uc.bankName)
}

// Resolve looks the account up only for this bank. Store faults are returned
// as errors, never as a miss.
func (uc *ResolutionUsecase) Resolve(ctx context.Context, accountNumber, institution string) (Resolution, error) {
	if !uc.IsLocalBank(institution) {
		return Resolution{}, nil
	}

	acc, err := uc.accounts.GetByAccountNumber(ctx, strings.TrimSpace(accountNumber))
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return Resolution{LocalBank: true}, nil
		}
		return Resolution{}, err
	}
	return Resolution{Internal: true, LocalBank: true, Account: acc}, nil
}
