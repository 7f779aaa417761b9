package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository"
	"github.com/King-Austin/securecipher-bankingapi/pkg/utils"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultCurrency            = "NGN"
	DefaultTransferMaxAttempts = 3

	eventPublishTimeout = 2 * time.Second
)

// amounts must fit NUMERIC(20,2)
var maxAmount = decimal.New(1, 18)

// TransferEvents receives transfer outcomes after the atomic unit finished.
type TransferEvents interface {
	TransferCompleted(ctx context.Context, res *domain.TransferResult) error
	TransferFailed(ctx context.Context, req domain.TransferRequest, fromAccount, reference string, cause error) error
}

type TransferConfig struct {
	Currency    string
	MaxAttempts int
}

type TransferUsecase struct {
	accounts repository.AccountRepository
	ledger   repository.LedgerRepository
	resolver *ResolutionUsecase
	refs     *utils.ReferenceGenerator
	events   TransferEvents
	logger   *zap.Logger

	currency    string
	maxAttempts int
	now         func() time.Time

	publishing sync.WaitGroup
}

func NewTransferUsecase(
	accounts repository.AccountRepository,
	ledger repository.LedgerRepository,
	resolver *ResolutionUsecase,
	refs *utils.ReferenceGenerator,
	events TransferEvents,
	logger *zap.Logger,
	cfg TransferConfig,
) *TransferUsecase {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultTransferMaxAttempts
	}
	if refs == nil {
		refs = utils.NewReferenceGenerator()
	}
	return &TransferUsecase{
		accounts:    accounts,
		ledger:      ledger,
		resolver:    resolver,
		refs:        refs,
		events:      events,
		logger:      logger,
		currency:    cfg.Currency,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

// ParseAmount accepts a JSON number or a numeric JSON string.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, xerrors.Field("amount", "amount is required")
	}

	lit := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &lit); err != nil {
			return decimal.Zero, xerrors.Field("amount", "amount must be a number")
		}
		lit = strings.TrimSpace(lit)
		if lit == "" {
			return decimal.Zero, xerrors.Field("amount", "amount is required")
		}
	}

	// rejects NaN, Infinity, booleans and objects
	amount, err := decimal.NewFromString(lit)
	if err != nil {
		return decimal.Zero, xerrors.Field("amount", "amount must be a number")
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount.Round(2), nil
}

func validateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return xerrors.Field("amount", "amount must be greater than zero")
	case !amount.Equal(amount.Round(2)):
		return xerrors.Field("amount", "amount cannot have more than 2 decimal places")
	case amount.GreaterThanOrEqual(maxAmount):
		return xerrors.Field("amount", "amount is too large")
	}
	return nil
}

// ValidateTransfer checks the request shape. Balance and recipient existence
// are checked by Transfer.
func ValidateTransfer(req domain.TransferRequest) error {
	if strings.TrimSpace(req.SenderUserID) == "" {
		return xerrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.RecipientAccount) == "" || strings.TrimSpace(req.RecipientBank) == "" {
		return xerrors.Field("recipient", "recipient account, bank, and amount are required")
	}
	return validateAmount(req.Amount)
}

// Transfer moves req.Amount from the caller to the recipient and returns the
// sender's record.
func (uc *TransferUsecase) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	res, err := uc.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Debit, nil
}

// Execute runs the transfer and returns both audit records.
//
// Balance mutation and record creation happen in one atomic unit. A reference
// collision rolls the unit back and retries it with a fresh reference, at most
// maxAttempts times. Insufficient funds and unknown recipients are returned as
// is; every other failure becomes ErrTransactionFailed.
func (uc *TransferUsecase) Execute(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	req.RecipientAccount = strings.TrimSpace(req.RecipientAccount)
	req.RecipientBank = strings.TrimSpace(req.RecipientBank)
	req.Description = strings.TrimSpace(req.Description)
	req.RecipientName = strings.TrimSpace(req.RecipientName)

	if err := ValidateTransfer(req); err != nil {
		return nil, err
	}

	sender, err := uc.accounts.GetByUserID(ctx, req.SenderUserID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("sender account: %w", xerrors.ErrNotFound)
		}
		uc.logger.Error("failed to load sender account",
			zap.String("user_id", req.SenderUserID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", xerrors.ErrTransactionFailed, err)
	}

	dest, err := uc.resolver.Resolve(ctx, req.RecipientAccount, req.RecipientBank)
	if err != nil {
		uc.logger.Error("failed to resolve recipient",
			zap.String("recipient_account", req.RecipientAccount),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", xerrors.ErrTransactionFailed, err)
	}
	if dest.LocalBank && !dest.Internal {
		return nil, xerrors.ErrRecipientNotFound
	}
	if dest.Internal && dest.Account.AccountNumber == sender.AccountNumber {
		return nil, fmt.Errorf("%w: %w", xerrors.ErrValidation, xerrors.ErrSelfTransfer)
	}

	// fast reject; the authoritative check runs under the row lock
	if sender.Balance.LessThan(req.Amount) {
		return nil, xerrors.ErrInsufficientFunds
	}

	var lastErr error
	var reference string
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		reference = uc.refs.NewReference(utils.ReferenceSender)

		result, err := uc.apply(ctx, req, sender, dest, reference)
		if err == nil {
			result.Attempts = attempt
			uc.logger.Info("transfer completed",
				zap.String("reference", reference),
				zap.String("from_account", sender.AccountNumber),
				zap.String("to_account", req.RecipientAccount),
				zap.Bool("internal", dest.Internal),
				zap.String("amount", req.Amount.StringFixed(2)),
				zap.Int("attempt", attempt))
			uc.publishCompleted(ctx, result)
			return result, nil
		}

		switch {
		case errors.Is(err, xerrors.ErrReferenceCollision):
			uc.logger.Warn("transfer reference collision, retrying",
				zap.String("reference", reference),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", uc.maxAttempts))
			lastErr = err
			continue
		case errors.Is(err, xerrors.ErrInsufficientFunds), errors.Is(err, xerrors.ErrRecipientNotFound):
			return nil, err
		default:
			uc.logger.Error("transfer rolled back",
				zap.String("reference", reference),
				zap.String("from_account", sender.AccountNumber),
				zap.Error(err))
			uc.publishFailed(ctx, req, sender.AccountNumber, reference, err)
			return nil, fmt.Errorf("%w: %v", xerrors.ErrTransactionFailed, err)
		}
	}

	uc.logger.Error("transfer failed: no unique reference",
		zap.String("from_account", sender.AccountNumber),
		zap.Int("attempts", uc.maxAttempts),
		zap.Error(lastErr))
	uc.publishFailed(ctx, req, sender.AccountNumber, reference, lastErr)
	return nil, fmt.Errorf("%w: could not allocate a unique reference after %d attempts",
		xerrors.ErrTransactionFailed, uc.maxAttempts)
}

// apply is one attempt of the atomic unit.
func (uc *TransferUsecase) apply(
	ctx context.Context,
	req domain.TransferRequest,
	sender *domain.Account,
	dest Resolution,
	reference string,
) (*domain.TransferResult, error) {
	var result *domain.TransferResult

	err := uc.ledger.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		numbers := []string{sender.AccountNumber}
		if dest.Internal {
			numbers = append(numbers, dest.Account.AccountNumber)
		}
		locked, err := tx.LockAccounts(ctx, numbers...)
		if err != nil {
			return err
		}

		from, ok := locked[sender.AccountNumber]
		if !ok {
			return fmt.Errorf("sender account %s: %w", sender.AccountNumber, xerrors.ErrNotFound)
		}
		var to *domain.Account
		if dest.Internal {
			if to, ok = locked[dest.Account.AccountNumber]; !ok {
				return xerrors.ErrRecipientNotFound
			}
		}

		if from.Balance.LessThan(req.Amount) {
			return xerrors.ErrInsufficientFunds
		}

		now := uc.now().UTC()
		fromBalance := from.Balance.Sub(req.Amount)
		if err := tx.UpdateBalance(ctx, from.ID, fromBalance); err != nil {
			return err
		}

		recipientName := req.RecipientName
		if to != nil {
			recipientName = to.DisplayName()
		} else if recipientName == "" {
			recipientName = domain.ExternalRecipientName
		}

		debit := &domain.Transaction{
			ID:               uuid.New(),
			UserID:           from.UserID,
			AccountNumber:    from.AccountNumber,
			Type:             domain.TransactionTypeTransfer,
			Amount:           req.Amount,
			Currency:         uc.currency,
			Description:      req.Description,
			RecipientName:    recipientName,
			RecipientAccount: req.RecipientAccount,
			RecipientBank:    req.RecipientBank,
			Status:           domain.TransactionStatusCompleted,
			Reference:        reference,
			BalanceAfter:     fromBalance,
			Category:         domain.CategoryTransfer,
			CreatedAt:        now,
		}
		if err := tx.InsertTransaction(ctx, debit); err != nil {
			return err
		}
		result = &domain.TransferResult{Debit: debit}

		if to == nil {
			return nil
		}

		creditRef, err := utils.CreditReference(reference)
		if err != nil {
			return err
		}
		toBalance := to.Balance.Add(req.Amount)
		if err := tx.UpdateBalance(ctx, to.ID, toBalance); err != nil {
			return err
		}

		description := req.Description
		if description == "" {
			description = "Transfer from " + from.Username
		}
		credit := &domain.Transaction{
			ID:               uuid.New(),
			UserID:           to.UserID,
			AccountNumber:    to.AccountNumber,
			Type:             domain.TransactionTypeCredit,
			Amount:           req.Amount,
			Currency:         uc.currency,
			Description:      description,
			RecipientName:    from.DisplayName(),
			RecipientAccount: from.AccountNumber,
			RecipientBank:    uc.resolver.BankName(),
			Status:           domain.TransactionStatusCompleted,
			Reference:        creditRef,
			BalanceAfter:     toBalance,
			Category:         domain.CategoryCredit,
			CreatedAt:        now,
		}
		if err := tx.InsertTransaction(ctx, credit); err != nil {
			return err
		}
		result.Credit = credit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// publishCompleted and publishFailed hand the outcome to the event sink in the
// background so a slow broker never holds the response. Each delivery gets
// its own eventPublishTimeout, detached from the request context.
func (uc *TransferUsecase) publishCompleted(ctx context.Context, res *domain.TransferResult) {
	uc.publish(ctx, res.Debit.Reference, func(ctx context.Context) error {
		return uc.events.TransferCompleted(ctx, res)
	})
}

func (uc *TransferUsecase) publishFailed(ctx context.Context, req domain.TransferRequest, fromAccount, reference string, cause error) {
	if cause == nil {
		return
	}
	uc.publish(ctx, reference, func(ctx context.Context) error {
		return uc.events.TransferFailed(ctx, req, fromAccount, reference, cause)
	})
}

func (uc *TransferUsecase) publish(ctx context.Context, reference string, send func(context.Context) error) {
	if uc.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	uc.publishing.Add(1)
	go func() {
		defer uc.publishing.Done()
		ctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			uc.logger.Warn("failed to publish transfer event",
				zap.String("reference", reference),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every pending event delivery has finished or timed out.
func (uc *TransferUsecase) Wait() {
	uc.publishing.Wait()
}
