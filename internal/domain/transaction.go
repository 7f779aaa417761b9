package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDebit    TransactionType = "debit"
	TransactionTypeCredit   TransactionType = "credit"
	TransactionTypeTransfer TransactionType = "transfer"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

const (
	CategoryTransfer = "Transfer"
	CategoryCredit   = "Credit"

	ExternalRecipientName = "External Account"
)

// Transaction is one immutable audit record owned by a single account.
// BalanceAfter is the owner's balance right after this record was applied.
type Transaction struct {
	ID               uuid.UUID         `json:"id"`
	UserID           string            `json:"-"`
	AccountNumber    string            `json:"account_number"`
	Type             TransactionType   `json:"type"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Description      string            `json:"description"`
	RecipientName    string            `json:"recipient_name"`
	RecipientAccount string            `json:"recipient_account"`
	RecipientBank    string            `json:"recipient_bank"`
	Status           TransactionStatus `json:"status"`
	Reference        string            `json:"reference"`
	BalanceAfter     decimal.Decimal   `json:"balance_after"`
	Category         string            `json:"category"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TransferRequest is the validated input of a single-hop transfer.
type TransferRequest struct {
	SenderUserID     string
	RecipientAccount string
	RecipientBank    string
	Amount           decimal.Decimal
	Description      string
	RecipientName    string
}

// TransferResult carries both audit records of a transfer. Credit is nil for
// external recipients.
type TransferResult struct {
	Debit    *Transaction
	Credit   *Transaction
	Attempts int
}

// TransactionFilter pages through an owner's history.
type TransactionFilter struct {
	UserID string
	Limit  int
	Offset int
}
