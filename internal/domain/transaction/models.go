package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a transaction as money in or money out.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

var ErrInvalidInput = errors.New("invalid input")

// Listing bounds
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Transaction is a posted or pending account movement. Amount is signed:
// negative is money leaving the account.
type Transaction struct {
	ID                    int64           `json:"id"`
	AccountID             int64           `json:"accountId"`
	ExternalTransactionID string          `json:"externalTransactionId"`
	Amount                decimal.Decimal `json:"amount"`
	Kind                  Kind            `json:"kind"`
	Currency              string          `json:"currency"`
	PostedDate            time.Time       `json:"postedDate"`
	MerchantName          *string         `json:"merchantName,omitempty"`
	Category              *string         `json:"category,omitempty"`
	Pending               bool            `json:"pending"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// CreateParams is used when inserting a transaction fetched from the provider
type CreateParams struct {
	AccountID             int64
	ExternalTransactionID string
	Amount                decimal.Decimal
	Kind                  Kind
	Currency              string
	PostedDate            time.Time
	MerchantName          *string
	Category              *string
	Pending               bool
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.AccountID <= 0 {
		return errors.New("valid account ID is required")
	}
	if p.ExternalTransactionID == "" {
		return errors.New("external transaction ID is required")
	}
	if p.Kind != KindIncome && p.Kind != KindExpense {
		return errors.New("kind must be income or expense")
	}
	if p.PostedDate.IsZero() {
		return errors.New("posted date is required")
	}
	return nil
}

// KindForAmount classifies a signed amount. Zero counts as income.
func KindForAmount(amount decimal.Decimal) Kind {
	if amount.IsNegative() {
		return KindExpense
	}
	return KindIncome
}
