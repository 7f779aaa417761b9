package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer's balance holder at this bank.
type Account struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	Username      string          `json:"username"`
	FirstName     string          `json:"first_name,omitempty"`
	LastName      string          `json:"last_name,omitempty"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"account_balance"`
	PublicKey     string          `json:"public_key,omitempty"`
	PinSet        bool            `json:"pin_set"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DisplayName is "First Last", falling back to the username.
func (a *Account) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// AccountVerification answers the verify-account lookup.
type AccountVerification struct {
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Bank    string `json:"bank,omitempty"`
	Message string `json:"message,omitempty"`
}
