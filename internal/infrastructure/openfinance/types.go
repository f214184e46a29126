package openfinance

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ExchangeResult is what a public token resolves to.
type ExchangeResult struct {
	AccessToken           string
	ExternalItemID        string
	ExternalInstitutionID string
}

// InstitutionMetadata describes a bank as known to the aggregator.
type InstitutionMetadata struct {
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
}

// Account represents an account from the aggregator API
type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName *string  `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Balances     Balances `json:"balances"`
}

// Balances carries the balances reported for an account. Either may be null.
type Balances struct {
	Current         decimal.NullDecimal `json:"current"`
	Available       decimal.NullDecimal `json:"available"`
	IsoCurrencyCode *string             `json:"iso_currency_code"`
}

// Currency returns the ISO currency code or an empty string.
func (b Balances) Currency() string {
	if b.IsoCurrencyCode == nil {
		return ""
	}
	return *b.IsoCurrencyCode
}

// DisplayName prefers the short account name over the official one.
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.OfficialName != nil {
		return *a.OfficialName
	}
	return a.AccountID
}

// Transaction represents a transaction from the aggregator API.
// A positive Amount is money leaving the account.
type Transaction struct {
	TransactionID   string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	IsoCurrencyCode *string         `json:"iso_currency_code"`
	DateString      string          `json:"date"` // "2026-03-01"
	Name            string          `json:"name"`
	MerchantName    *string         `json:"merchant_name"`
	Category        []string        `json:"category"`
	Pending         bool            `json:"pending"`
}

// GetDate parses the posting date
func (t *Transaction) GetDate() (time.Time, error) {
	parsed, err := time.Parse(dateLayout, t.DateString)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", t.DateString, err)
	}
	return parsed, nil
}

// Currency returns the ISO currency code or an empty string.
func (t *Transaction) Currency() string {
	if t.IsoCurrencyCode == nil {
		return ""
	}
	return *t.IsoCurrencyCode
}

// CategoryPath joins the category hierarchy, or returns nil when absent.
func (t *Transaction) CategoryPath() *string {
	if len(t.Category) == 0 {
		return nil
	}
	path := strings.Join(t.Category, " > ")
	return &path
}

// Merchant returns the merchant name, falling back to the raw description.
func (t *Transaction) Merchant() *string {
	if t.MerchantName != nil && *t.MerchantName != "" {
		return t.MerchantName
	}
	if t.Name != "" {
		name := t.Name
		return &name
	}
	return nil
}

// DateRange is an inclusive range of posting dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// TransactionPage is one page of a transaction listing.
type TransactionPage struct {
	Transactions []Transaction
	HasMore      bool
	NextCursor   string
}
