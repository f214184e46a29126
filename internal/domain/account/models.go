package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// Account is a bank account under a linked institution. Balances are only
// written by sync.
type Account struct {
	ID                int64               `json:"id"`
	InstitutionID     int64               `json:"institutionId"`
	ExternalAccountID string              `json:"externalAccountId"`
	Name              string              `json:"name"`
	Type              string              `json:"type"`
	Subtype           string              `json:"subtype"`
	CurrentBalance    decimal.NullDecimal `json:"currentBalance"`
	AvailableBalance  decimal.NullDecimal `json:"availableBalance"`
	Currency          string              `json:"currency"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// CreateParams contains parameters for creating a new account
type CreateParams struct {
	InstitutionID     int64
	ExternalAccountID string
	Name              string
	Type              string
	Subtype           string
	CurrentBalance    decimal.NullDecimal
	AvailableBalance  decimal.NullDecimal
	Currency          string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.InstitutionID <= 0 {
		return errors.New("valid institution ID is required")
	}
	if p.ExternalAccountID == "" {
		return errors.New("external account ID is required")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	return nil
}

// Balances carries a refreshed balance snapshot.
type Balances struct {
	Current   decimal.NullDecimal
	Available decimal.NullDecimal
}
